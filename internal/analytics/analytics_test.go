package analytics_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/pai-progress/internal/analytics"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func recordWithSessions(dates []time.Time, topics [][]string) *progress.Record {
	rec := progress.NewRecord("Alice")
	for i, d := range dates {
		rec.Sessions = append(rec.Sessions, progress.SessionRecord{Date: d, FoundTopics: topics[i]})
	}
	rec.Statistics.TotalSessions = len(dates)
	return rec
}

func TestBuildWeeklyReport_WindowBoundary(t *testing.T) {
	week := 7 * 24 * time.Hour
	rec := recordWithSessions(
		[]time.Time{
			testNow.Add(-week - time.Second),
			testNow.Add(-week),
			testNow.Add(-time.Hour),
		},
		[][]string{{"old"}, {"edge"}, {"recent"}},
	)
	rec.Statistics.TopicsWorked = 3

	report := analytics.BuildWeeklyReport(rec, testNow)
	if report.SessionsCount != 2 {
		t.Errorf("SessionsCount = %d, want 2", report.SessionsCount)
	}
	if report.ActiveTopics != 2 {
		t.Errorf("ActiveTopics = %d, want 2", report.ActiveTopics)
	}
	for _, tc := range report.MostProblematicTopics {
		if tc.Topic == "old" {
			t.Error("session older than 7 days should be excluded")
		}
	}
	if report.TotalTopicsWorked != 3 {
		t.Errorf("TotalTopicsWorked = %d, want 3", report.TotalTopicsWorked)
	}
}

func TestBuildWeeklyReport_TopThreeTieBreak(t *testing.T) {
	rec := recordWithSessions(
		[]time.Time{testNow.Add(-2 * time.Hour), testNow.Add(-time.Hour)},
		[][]string{
			{"b", "a", "c", "d", "a"},
			{"d", "c", "e"},
		},
	)

	report := analytics.BuildWeeklyReport(rec, testNow)

	// counts: b=1 a=2 c=2 d=2 e=1; ties keep first-seen order a, c, d.
	want := []analytics.TopicCount{{Topic: "a", Count: 2}, {Topic: "c", Count: 2}, {Topic: "d", Count: 2}}
	if len(report.MostProblematicTopics) != len(want) {
		t.Fatalf("MostProblematicTopics = %v, want %v", report.MostProblematicTopics, want)
	}
	for i := range want {
		if report.MostProblematicTopics[i] != want[i] {
			t.Errorf("MostProblematicTopics[%d] = %v, want %v", i, report.MostProblematicTopics[i], want[i])
		}
	}
	if report.ActiveTopics != 5 {
		t.Errorf("ActiveTopics = %d, want 5", report.ActiveTopics)
	}
}

func TestBuildWeeklyReport_Expiry(t *testing.T) {
	week := 7 * 24 * time.Hour
	oldest := testNow.Add(-6 * 24 * time.Hour)
	rec := recordWithSessions(
		[]time.Time{testNow.Add(-week - time.Hour), oldest, testNow.Add(-time.Hour)},
		[][]string{{"old"}, {"a"}, {"b"}},
	)

	report := analytics.BuildWeeklyReport(rec, testNow)
	if !report.GeneratedAt.Equal(testNow) {
		t.Errorf("GeneratedAt = %v, want %v", report.GeneratedAt, testNow)
	}
	if want := oldest.Add(week); !report.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", report.ExpiresAt, want)
	}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"same instant", testNow, false},
		{"at expiry", oldest.Add(week), false},
		{"after expiry", oldest.Add(week + time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := report.Expired(tt.now); got != tt.want {
				t.Errorf("Expired(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}

	empty := analytics.BuildWeeklyReport(progress.NewRecord("Bob"), testNow)
	if !empty.ExpiresAt.IsZero() || empty.Expired(testNow.Add(365*24*time.Hour)) {
		t.Errorf("empty report ExpiresAt = %v, should never expire", empty.ExpiresAt)
	}
}

func TestBuildWeeklyReport_Empty(t *testing.T) {
	report := analytics.BuildWeeklyReport(progress.NewRecord("Alice"), testNow)
	if report.SessionsCount != 0 || report.ActiveTopics != 0 || len(report.MostProblematicTopics) != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
}

func TestBuildWeeklyReport_DoesNotMutate(t *testing.T) {
	rec := recordWithSessions([]time.Time{testNow}, [][]string{{"a", "b"}})
	before := len(rec.Sessions)
	_ = analytics.BuildWeeklyReport(rec, testNow)
	_ = analytics.BuildRecommendations(rec, testNow)
	_ = analytics.BuildStudyPlan(rec)
	if len(rec.Sessions) != before || rec.Topics.Len() != 0 {
		t.Error("analytics must not mutate the record")
	}
}

func TestBuildRecommendations(t *testing.T) {
	weakRecord := func(sessions int, lastAgo time.Duration) *progress.Record {
		rec := progress.NewRecord("Alice")
		rec.Topics.Set("fractions", &progress.TopicState{EncounterCount: 3, MasteryScore: 10})
		rec.Topics.Set("perimeter", &progress.TopicState{EncounterCount: 2, MasteryScore: 60})
		rec.Topics.Set("spelling", &progress.TopicState{EncounterCount: 2, MasteryScore: 20})
		for i := 0; i < sessions; i++ {
			rec.Sessions = append(rec.Sessions, progress.SessionRecord{Date: testNow.Add(-lastAgo)})
		}
		rec.Statistics.TotalSessions = sessions
		return rec
	}

	tests := []struct {
		name string
		rec  *progress.Record
		want []string
	}{
		{
			name: "empty record",
			rec:  progress.NewRecord("Alice"),
			want: []string{analytics.MsgAllClear, analytics.MsgMoreData},
		},
		{
			name: "weak topics named two at most",
			rec:  weakRecord(4, time.Hour),
			want: []string{analytics.MsgReviewPrefix + "fractions, perimeter"},
		},
		{
			name: "inactive for more than a week",
			rec:  weakRecord(6, 8*24*time.Hour),
			want: []string{analytics.MsgReviewPrefix + "fractions, perimeter", analytics.MsgRegularPractice},
		},
		{
			name: "exactly seven days is not inactive",
			rec:  weakRecord(6, 7*24*time.Hour+time.Hour),
			want: []string{analytics.MsgReviewPrefix + "fractions, perimeter"},
		},
		{
			name: "five sessions never warns",
			rec:  weakRecord(5, 30*24*time.Hour),
			want: []string{analytics.MsgReviewPrefix + "fractions, perimeter"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := analytics.BuildRecommendations(tt.rec, testNow)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("BuildRecommendations() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildRecommendations_UsesLastAppendedSession(t *testing.T) {
	rec := progress.NewRecord("Alice")
	for i := 0; i < 6; i++ {
		rec.Sessions = append(rec.Sessions, progress.SessionRecord{Date: testNow.Add(-time.Hour)})
	}
	rec.Sessions = append(rec.Sessions, progress.SessionRecord{Date: testNow.Add(-10 * 24 * time.Hour)})
	rec.Statistics.TotalSessions = 7

	got := analytics.BuildRecommendations(rec, testNow)
	if len(got) != 2 || got[1] != analytics.MsgRegularPractice {
		t.Errorf("BuildRecommendations() = %q, want inactivity warning from last session", got)
	}
}

func TestDaysSince(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want int
	}{
		{0, 0},
		{23 * time.Hour, 0},
		{24 * time.Hour, 1},
		{8*24*time.Hour + time.Minute, 8},
		{-time.Hour, -1},
	}
	for _, tt := range tests {
		if got := analytics.DaysSince(testNow.Add(-tt.ago), testNow); got != tt.want {
			t.Errorf("DaysSince(-%v) = %d, want %d", tt.ago, got, tt.want)
		}
	}
}

func TestBuildStudyPlan(t *testing.T) {
	rec := progress.NewRecord("Alice")
	rec.Topics.Set("fractions", &progress.TopicState{EncounterCount: 3, MasteryScore: 12.5})
	rec.Topics.Set("mastered", &progress.TopicState{EncounterCount: 3, MasteryScore: 95})
	rec.Topics.Set("perimeter", &progress.TopicState{EncounterCount: 2, MasteryScore: 40})

	plan := analytics.BuildStudyPlan(rec)
	if !plan.HasWeakTopics {
		t.Fatal("HasWeakTopics = false, want true")
	}
	if len(plan.Days) != 7 {
		t.Fatalf("len(Days) = %d, want 7", len(plan.Days))
	}
	if plan.Days[0].Day != "Monday" || plan.Days[0].Topic != "fractions" || plan.Days[0].CurrentMastery != 12.5 {
		t.Errorf("Days[0] = %+v", plan.Days[0])
	}
	if plan.Days[1].Topic != "perimeter" || plan.Days[1].TargetMastery != analytics.PlanTargetMastery {
		t.Errorf("Days[1] = %+v", plan.Days[1])
	}
	if plan.Days[6].Day != "Sunday" || plan.Days[6].Topic != "" {
		t.Errorf("Days[6] = %+v, want review day", plan.Days[6])
	}
	if !strings.Contains(plan.MainGoal, "fractions") {
		t.Errorf("MainGoal = %q, want first weak topic", plan.MainGoal)
	}
}

func TestBuildStudyPlan_NoWeakTopics(t *testing.T) {
	plan := analytics.BuildStudyPlan(progress.NewRecord("Alice"))
	if plan.HasWeakTopics || len(plan.Days) != 0 {
		t.Errorf("plan = %+v, want maintenance plan", plan)
	}
	if len(plan.Tips) != 3 {
		t.Errorf("len(Tips) = %d, want 3", len(plan.Tips))
	}
}

func TestBuildTopicProgress(t *testing.T) {
	rec := progress.NewRecord("Alice")
	rec.Topics.Set("b", &progress.TopicState{EncounterCount: 2, MasteryScore: 10})
	rec.Topics.Set("a", &progress.TopicState{EncounterCount: 1, MasteryScore: 90})

	rows := analytics.BuildTopicProgress(rec)
	if len(rows) != 2 || rows[0].Topic != "b" || !rows[0].Weak || rows[1].Weak {
		t.Errorf("rows = %+v", rows)
	}
	if got := analytics.FormatPercent(rows[0].MasteryScore); got != "10.0%" {
		t.Errorf("FormatPercent() = %q, want 10.0%%", got)
	}
}

type fakeCache struct {
	data    map[string]analytics.WeeklyReport
	deletes int
	lastTTL time.Duration
}

func (c *fakeCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	r, ok := c.data[key]
	if ok {
		*dst.(*analytics.WeeklyReport) = r
	}
	return ok, nil
}

func (c *fakeCache) SetJSON(_ context.Context, key string, v any, ttl time.Duration) error {
	c.data[key] = v.(analytics.WeeklyReport)
	c.lastTTL = ttl
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
	}
	c.deletes++
	return nil
}

type countingLoader struct {
	store *progress.Store
	loads int
}

func (l *countingLoader) Load(ctx context.Context, student string) (*progress.Record, error) {
	l.loads++
	return l.store.Load(ctx, student)
}

func TestService_WeeklyReportCached(t *testing.T) {
	ctx := context.Background()
	store := progress.NewStore(progress.StoreConfig{Now: func() time.Time { return testNow }})
	rec, _ := store.Load(ctx, "Alice")
	_ = store.AddSession(ctx, rec, "text", []string{"fractions"}, nil)

	loader := &countingLoader{store: store}
	cache := &fakeCache{data: map[string]analytics.WeeklyReport{}}
	svc := analytics.NewService(analytics.ServiceConfig{
		Loader: loader,
		Cache:  cache,
		Now:    func() time.Time { return testNow },
	})

	first, err := svc.WeeklyReport(ctx, "Alice")
	if err != nil {
		t.Fatalf("WeeklyReport() error = %v", err)
	}
	second, _ := svc.WeeklyReport(ctx, "Alice")
	if loader.loads != 1 {
		t.Errorf("loads = %d, want 1 (second call cached)", loader.loads)
	}
	if first.SessionsCount != 1 || second.SessionsCount != 1 {
		t.Errorf("reports = %+v / %+v", first, second)
	}

	svc.Invalidate(ctx, "Alice")
	_, _ = svc.WeeklyReport(ctx, "Alice")
	if loader.loads != 2 {
		t.Errorf("loads = %d, want 2 after invalidate", loader.loads)
	}
}

func TestService_WeeklyReportExpiresWithWindow(t *testing.T) {
	ctx := context.Background()
	sessionAt := testNow.Add(-(7*24 - 1) * time.Hour) // leaves the window one hour after testNow
	store := progress.NewStore(progress.StoreConfig{Now: func() time.Time { return sessionAt }})
	rec, _ := store.Load(ctx, "Alice")
	_ = store.AddSession(ctx, rec, "text", []string{"fractions"}, nil)

	now := testNow
	loader := &countingLoader{store: store}
	cache := &fakeCache{data: map[string]analytics.WeeklyReport{}}
	svc := analytics.NewService(analytics.ServiceConfig{
		Loader:    loader,
		Cache:     cache,
		ReportTTL: 24 * time.Hour,
		Now:       func() time.Time { return now },
	})

	first, err := svc.WeeklyReport(ctx, "Alice")
	if err != nil {
		t.Fatalf("WeeklyReport() error = %v", err)
	}
	if first.SessionsCount != 1 {
		t.Fatalf("SessionsCount = %d, want 1", first.SessionsCount)
	}
	if cache.lastTTL != time.Hour {
		t.Errorf("cache TTL = %v, want 1h (time until the session ages out)", cache.lastTTL)
	}

	now = testNow.Add(2 * time.Hour)
	second, err := svc.WeeklyReport(ctx, "Alice")
	if err != nil {
		t.Fatalf("WeeklyReport() error = %v", err)
	}
	if loader.loads != 2 {
		t.Errorf("loads = %d, want 2 (expired report recomputed)", loader.loads)
	}
	if second.SessionsCount != 0 {
		t.Errorf("SessionsCount = %d, want 0 after the session aged out", second.SessionsCount)
	}
}

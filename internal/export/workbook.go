// Package export renders a student's progress as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-progress/internal/analytics"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

// Sheet names, in workbook order.
const (
	SheetSummary  = "Summary"
	SheetTopics   = "Topics"
	SheetSessions = "Sessions"
	SheetPlan     = "Plan"
)

const dateLayout = "2006-01-02 15:04"

// Workbook builds the progress workbook for rec as of now. The caller must
// close the returned file.
func Workbook(rec *progress.Record, now time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename default sheet: %w", err)
	}
	for _, name := range []string{SheetTopics, SheetSessions, SheetPlan} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	w := &sheetWriter{f: f, header: header}
	w.summary(rec, now)
	w.topics(rec)
	w.sessions(rec)
	w.plan(rec)
	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	return f, nil
}

// Write renders the workbook for rec to out.
func Write(out io.Writer, rec *progress.Record, now time.Time) error {
	f, err := Workbook(rec, now)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// FileName is the download name for a student's workbook.
func FileName(student string, now time.Time) string {
	return fmt.Sprintf("%s_progress_%s.xlsx", progress.SafeName(student), now.Format("20060102"))
}

// sheetWriter keeps the first error so row writes stay readable.
type sheetWriter struct {
	f      *excelize.File
	header int
	err    error
}

func (w *sheetWriter) row(sheet string, n int, values ...any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		w.err = fmt.Errorf("write %s row %d: %w", sheet, n, err)
	}
}

func (w *sheetWriter) headerRow(sheet string, values ...any) {
	w.row(sheet, 1, values...)
	if w.err != nil {
		return
	}
	last, err := excelize.CoordinatesToCellName(len(values), 1)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetCellStyle(sheet, "A1", last, w.header); err != nil {
		w.err = fmt.Errorf("style %s header: %w", sheet, err)
	}
}

func (w *sheetWriter) summary(rec *progress.Record, now time.Time) {
	stats := progress.Summary(rec)
	report := analytics.BuildWeeklyReport(rec, now)

	w.headerRow(SheetSummary, "Metric", "Value")
	rows := [][]any{
		{"Student", rec.Student},
		{"Generated", now.Format(dateLayout)},
		{"Total sessions", stats.TotalSessions},
		{"Works analyzed", stats.TotalWorksAnalyzed},
		{"Topics worked", stats.TopicsWorked},
		{"Sessions this week", report.SessionsCount},
		{"Active topics this week", report.ActiveTopics},
	}
	for i, r := range rows {
		w.row(SheetSummary, i+2, r...)
	}

	n := len(rows) + 3
	w.row(SheetSummary, n, "Recommendations")
	for i, msg := range analytics.BuildRecommendations(rec, now) {
		w.row(SheetSummary, n+1+i, msg)
	}
}

func (w *sheetWriter) topics(rec *progress.Record) {
	w.headerRow(SheetTopics, "Topic", "Mastery", "Encounters", "Difficulty", "First encounter", "Last practiced", "Weak")
	for i, t := range analytics.BuildTopicProgress(rec) {
		state, _ := rec.Topics.Get(t.Topic)
		w.row(SheetTopics, i+2,
			t.Topic,
			t.MasteryScore,
			t.EncounterCount,
			string(t.DifficultyLevel),
			state.FirstEncounter.Format(dateLayout),
			t.LastPracticed.Format(dateLayout),
			t.Weak,
		)
	}
}

func (w *sheetWriter) sessions(rec *progress.Record) {
	w.headerRow(SheetSessions, "Date", "Topics", "Excerpt")
	for i, s := range rec.Sessions {
		w.row(SheetSessions, i+2, s.Date.Format(dateLayout), strings.Join(s.FoundTopics, ", "), s.AnalyzedText)
	}
}

func (w *sheetWriter) plan(rec *progress.Record) {
	plan := analytics.BuildStudyPlan(rec)
	w.headerRow(SheetPlan, "Day", "Topic", "Activity", "Current mastery", "Target mastery")
	n := 2
	for _, d := range plan.Days {
		w.row(SheetPlan, n, d.Day, d.Topic, d.Activity, d.CurrentMastery, d.TargetMastery)
		n++
	}
	n++
	w.row(SheetPlan, n, "Goal", plan.MainGoal)
	for _, tip := range plan.Tips {
		n++
		w.row(SheetPlan, n, "Tip", tip)
	}
}

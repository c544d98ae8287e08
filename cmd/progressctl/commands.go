package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-progress/internal/analytics"
	"github.com/p-n-ai/pai-progress/internal/export"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/session"
)

var rule = strings.Repeat("─", 48)

func newStudentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "students",
		Short: "List students with stored progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			names, err := a.Engine.Students(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, names)
			}
			if len(names) == 0 {
				fmt.Fprintln(out, "No students yet.")
				return nil
			}
			for _, n := range names {
				fmt.Fprintln(out, n)
			}
			return nil
		},
	}
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <student>",
		Short: "Show session counters and per-topic mastery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Engine.Record(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			stats := progress.Summary(rec)
			rows := analytics.BuildTopicProgress(rec)

			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, map[string]any{"summary": stats, "topics": rows})
			}
			fmt.Fprintf(out, "Student:         %s\n", rec.Student)
			fmt.Fprintf(out, "Sessions:        %d\n", stats.TotalSessions)
			fmt.Fprintf(out, "Works analyzed:  %d\n", stats.TotalWorksAnalyzed)
			fmt.Fprintf(out, "Topics worked:   %d\n", stats.TopicsWorked)
			if len(rows) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "%-24s  %8s  %6s  %-6s\n", "Topic", "Mastery", "Seen", "Level")
			fmt.Fprintln(out, rule)
			for _, r := range rows {
				marker := ""
				if r.Weak {
					marker = "  weak"
				}
				fmt.Fprintf(out, "%-24s  %8s  %6d  %-6s%s\n",
					r.Topic, analytics.FormatPercent(r.MasteryScore), r.EncounterCount, r.DifficultyLevel, marker)
			}
			return nil
		},
	}
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <student>",
		Short: "Show the last seven days of activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Analytics.WeeklyReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, report)
			}
			fmt.Fprintf(out, "Sessions this week:   %d\n", report.SessionsCount)
			fmt.Fprintf(out, "Active topics:        %d\n", report.ActiveTopics)
			fmt.Fprintf(out, "Topics worked total:  %d\n", report.TotalTopicsWorked)
			for i, tc := range report.MostProblematicTopics {
				fmt.Fprintf(out, "  %d. %s (%d)\n", i+1, tc.Topic, tc.Count)
			}
			return nil
		},
	}
}

func newWeakCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weak <student>",
		Short: "List topics that need more practice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minEncounters, _ := cmd.Flags().GetInt("min-encounters")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Engine.Record(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			weak := progress.WeakTopics(rec, minEncounters)
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, weak)
			}
			if len(weak) == 0 {
				fmt.Fprintln(out, "No weak topics.")
				return nil
			}
			for _, topic := range weak {
				state, _ := rec.Topics.Get(topic)
				fmt.Fprintf(out, "%-24s  %s\n", topic, analytics.FormatPercent(state.MasteryScore))
			}
			return nil
		},
	}
	cmd.Flags().Int("min-encounters", progress.DefaultMinEncounters, "Minimum encounters before a topic can be weak")
	return cmd
}

func newRecommendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <student>",
		Short: "Print study recommendations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.Analytics.Recommendations(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, recs)
			}
			for _, r := range recs {
				fmt.Fprintf(out, "- %s\n", r)
			}
			return nil
		},
	}
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <student>",
		Short: "Print a one-week study plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.Analytics.StudyPlan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, plan)
			}
			fmt.Fprintf(out, "Goal: %s\n", plan.MainGoal)
			for _, d := range plan.Days {
				if d.Topic == "" {
					fmt.Fprintf(out, "%-10s %s\n", d.Day, d.Activity)
					continue
				}
				fmt.Fprintf(out, "%-10s %s (%s -> %s)\n", d.Day, d.Activity,
					analytics.FormatPercent(d.CurrentMastery), analytics.FormatPercent(d.TargetMastery))
			}
			for _, tip := range plan.Tips {
				fmt.Fprintf(out, "- %s\n", tip)
			}
			return nil
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <student>",
		Short: "Analyze a submission and record the session",
		Long:  "Reads the submission from --text, --file, or standard input when --file is \"-\".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := submissionText(cmd)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Engine.Analyze(cmd.Context(), args[0], text)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, result)
			}
			if len(result.Topics) == 0 {
				fmt.Fprintln(out, "No known topics found.")
			}
			seen := map[string]bool{}
			for _, t := range result.Topics {
				if seen[t.ID] {
					continue
				}
				seen[t.ID] = true
				fmt.Fprintf(out, "%s: %s\n", t.ID, t.Description)
				if task, ok := result.RecommendedTasks[t.ID]; ok {
					fmt.Fprintf(out, "  task: %s\n", task)
				}
			}
			if !result.WorkSaved {
				fmt.Fprintln(out, "warning: the submission text could not be saved")
			}
			return nil
		},
	}
	cmd.Flags().StringP("text", "t", "", "Submission text")
	cmd.Flags().StringP("file", "f", "", "Read the submission from a file (\"-\" for stdin)")
	return cmd
}

func submissionText(cmd *cobra.Command) (string, error) {
	text, _ := cmd.Flags().GetString("text")
	file, _ := cmd.Flags().GetString("file")
	switch {
	case text != "" && file != "":
		return "", fmt.Errorf("use either --text or --file")
	case text != "":
		return text, nil
	case file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read submission: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("a submission is required (--text or --file)")
}

func newRateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rate <student> <topic> <1|2|3>",
		Short: "Record how a practice task went (1 solved, 2 partial, 3 failed)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid rating %q: %w", args[2], session.ErrInvalidRating)
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			state, err := a.Engine.Rate(cmd.Context(), args[0], args[1], session.Rating(n))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, state)
			}
			fmt.Fprintf(out, "%s: mastery %s, level %s\n", args[1], analytics.FormatPercent(state.MasteryScore), state.DifficultyLevel)
			return nil
		},
	}
}

func newTaskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task <student> [topic]",
		Short: "Show a practice task, picking a weak topic when none is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var p *session.Practice
			if len(args) == 2 {
				p, err = a.Engine.PracticeTask(cmd.Context(), args[0], args[1])
			} else {
				p, err = a.Engine.RandomPractice(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, p)
			}
			fmt.Fprintf(out, "%s (%s)\n%s\n\n%s\n", p.Topic, p.Difficulty, p.Description, p.Task)
			if p.Notes != "" {
				fmt.Fprintf(out, "\nNotes:\n%s\n", p.Notes)
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <student>",
		Short: "Write the student's progress workbook (.xlsx)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Engine.Record(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			now := a.Analytics.Now()
			path, _ := cmd.Flags().GetString("output")
			if path == "" {
				path = export.FileName(rec.Student, now)
			}

			f, err := export.Workbook(rec, now)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := f.SaveAs(path); err != nil {
				return fmt.Errorf("save workbook: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output path (default <student>_progress_<date>.xlsx)")
	return cmd
}

func newDigestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Run the progress digest once and report inactive students",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.Scheduler().RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, d)
			}
			fmt.Fprintf(out, "Students: %d  Reports: %d\n", d.Students, d.Reports)
			if len(d.Inactive) > 0 {
				fmt.Fprintf(out, "Inactive: %s\n", strings.Join(d.Inactive, ", "))
			}
			if len(d.Failed) > 0 {
				fmt.Fprintf(out, "Failed:   %s\n", strings.Join(d.Failed, ", "))
			}
			return nil
		},
	}
}

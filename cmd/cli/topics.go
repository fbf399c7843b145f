package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/model"
	"github.com/and161185/topiclist/internal/search"
	"github.com/and161185/topiclist/internal/state"
	"github.com/and161185/topiclist/internal/ui"
)

// listedTopic is the json/yaml shape of `list`.
type listedTopic struct {
	ID        int64            `json:"id"         yaml:"id"`
	Title     string           `json:"title"      yaml:"title"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
	Subtopics []listedSubtopic `json:"subtopics"  yaml:"subtopics"`
}

type listedSubtopic struct {
	ID        int64  `json:"id"                yaml:"id"`
	Title     string `json:"title"             yaml:"title"`
	Completed bool   `json:"completed"         yaml:"completed"`
	URL       string `json:"url,omitempty"     yaml:"url,omitempty"`
	Content   string `json:"content,omitempty" yaml:"content,omitempty"`
}

func listed(ts []model.Topic) []listedTopic {
	out := make([]listedTopic, 0, len(ts))
	for _, t := range ts {
		lt := listedTopic{ID: t.ID, Title: t.Title, CreatedAt: t.CreatedAt, Subtopics: make([]listedSubtopic, 0, len(t.Subtopics))}
		for _, s := range t.Subtopics {
			lt.Subtopics = append(lt.Subtopics, listedSubtopic{
				ID: s.ID, Title: s.Title, Completed: s.Completed, URL: s.URL, Content: s.Content,
			})
		}
		out = append(out, lt)
	}
	return out
}

func snapshotOf(ts []model.Topic) state.Snapshot {
	return state.Snapshot{Topics: ts, Modal: state.Closed{}}
}

func writeTopics(w io.Writer, format string, ts []model.Topic) error {
	switch strings.ToLower(format) {
	case "text", "":
		return ui.RenderText(w, ui.BuildView(snapshotOf(ts)))
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(listed(ts))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(listed(ts)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func listCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List topics with their subtopics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctl, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			return writeTopics(cmd.OutOrStdout(), format, ctl.Topics())
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "text", "output format: text|json|yaml")
	return cmd
}

func topicCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topic",
		Short: "Manage topics",
	}

	add := &cobra.Command{
		Use:   "add TITLE...",
		Short: "Create a topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctl, err := a.signedIn(ctx)
			if err != nil {
				return err
			}
			return ctl.AddTopic(ctx, strings.Join(args, " "))
		},
	}

	rm := &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a topic and its subtopics",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ctl, err := a.signedIn(ctx)
			if err != nil {
				return err
			}
			return ctl.DeleteTopic(ctx, id)
		},
	}

	rename := &cobra.Command{
		Use:   "rename ID TITLE...",
		Short: "Change a topic title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ctl, err := a.signedIn(ctx)
			if err != nil {
				return err
			}
			return ctl.UpdateTopic(ctx, id, strings.Join(args[1:], " "))
		},
	}

	cmd.AddCommand(add, rm, rename)
	return cmd
}

func subCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sub",
		Short: "Manage subtopics",
	}

	var url, content string
	add := &cobra.Command{
		Use:   "add TOPIC_ID TITLE...",
		Short: "Add a subtopic to a topic",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			topicID, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ctl, err := a.signedIn(ctx)
			if err != nil {
				return err
			}
			return ctl.AddSubtopic(ctx, topicID, strings.Join(args[1:], " "), url, content)
		},
	}
	add.Flags().StringVar(&url, "url", "", "link shown with the subtopic")
	add.Flags().StringVar(&content, "content", "", "additional free-text content")

	toggle := &cobra.Command{
		Use:   "toggle ID",
		Short: "Flip a subtopic between done and not done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ctl, err := a.signedIn(ctx)
			if err != nil {
				return err
			}
			s, err := findSubtopic(ctl.Topics(), id)
			if err != nil {
				return err
			}
			if err := ctl.ToggleSubtopicCompletion(ctx, id, s.Completed); err != nil {
				return err
			}
			mark := "[x]"
			if s.Completed {
				mark = "[ ]"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s #%d %s\n", mark, s.ID, s.Title)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print a subtopic with its content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctl, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			s, err := findSubtopic(ctl.Topics(), id)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s\n", s.Title)
			if s.URL != "" {
				fmt.Fprintf(w, "%s\n", s.URL)
			}
			if s.HasContent() {
				fmt.Fprintf(w, "\n%s\n", s.Content)
			}
			return nil
		},
	}

	cmd.AddCommand(add, toggle, show)
	return cmd
}

func findSubtopic(ts []model.Topic, id int64) (model.Subtopic, error) {
	for _, t := range ts {
		for _, s := range t.Subtopics {
			if s.ID == id {
				return s, nil
			}
		}
	}
	return model.Subtopic{}, fmt.Errorf("subtopic %d: %w", id, errs.ErrNotFound)
}

func searchCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Full-text search over topics and subtopics",
		Long: `search indexes the current checklist in memory and runs a query-string
query over titles, content and links. Phrases ("..."), required (+) and
excluded (-) terms and fuzzy matches (word~) are supported.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			idx, err := search.Build(ctl.Topics())
			if err != nil {
				return err
			}
			defer idx.Close()

			hits, err := idx.Search(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(w, "no matches")
				return nil
			}
			for _, h := range hits {
				if h.Kind == search.KindSubtopic {
					fmt.Fprintf(w, "subtopic #%d %s (topic #%d)\n", h.SubtopicID, h.Title, h.TopicID)
					continue
				}
				fmt.Fprintf(w, "topic    #%d %s\n", h.TopicID, ui.Truncate(h.Title, ui.TitleWidth))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of results")
	return cmd
}

package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/raysh454/rivalscope/internal/model"
	"github.com/raysh454/rivalscope/internal/utils"
)

var pageURLOptions = utils.CanonicalizeOptions{DropTrackingParams: true, DefaultScheme: "https"}

type pagesFile struct {
	Pages []model.PageCheck `yaml:"pages"`
}

// LoadPages reads a YAML file with a top-level "pages" list. Every page
// needs a unique id and an http(s) url; urls are canonicalized (https is
// assumed when no scheme is given, tracking parameters are dropped).
func LoadPages(path string) ([]model.PageCheck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pages: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f pagesFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}

	seen := map[string]bool{}
	var errs []error
	for i := range f.Pages {
		p := &f.Pages[i]
		canonical, err := utils.Canonicalize(p.URL, pageURLOptions)
		switch {
		case p.PageID == "":
			errs = append(errs, fmt.Errorf("page %d: id is required", i))
		case seen[p.PageID]:
			errs = append(errs, fmt.Errorf("page %d: duplicate id %q", i, p.PageID))
		case err != nil || !strings.HasPrefix(canonical, "http://") && !strings.HasPrefix(canonical, "https://"):
			errs = append(errs, fmt.Errorf("page %d: invalid url %q", i, p.URL))
		default:
			p.URL = canonical
		}
		seen[p.PageID] = true
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return f.Pages, nil
}

func newCheckCommand(root *rootOptions) *cobra.Command {
	var (
		pagesPath string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one detection sweep over the pages file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pages, err := LoadPages(pagesPath)
			if err != nil {
				return err
			}
			a, err := root.application(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			runner, err := a.Runner()
			if err != nil {
				return err
			}
			run := runner.Run(cmd.Context(), pages)

			if s, err := a.Store(); err == nil && s != nil {
				if err := s.SaveRun(cmd.Context(), run); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, run); err != nil {
					return err
				}
			} else {
				for _, o := range run.Outcomes {
					line := fmt.Sprintf("%-10s %-24s %s", o.Status, o.PageID, o.URL)
					if o.Error != "" {
						line += "  (" + o.Error + ")"
					}
					if o.ChangeRecordID != "" {
						line += "  change=" + o.ChangeRecordID
					}
					fmt.Fprintln(out, line)
				}
				fmt.Fprintf(out, "run %s %s: %d checked, %d changed, %d errors\n",
					run.ID, run.Status, run.PagesChecked, run.ChangesFound, run.Errors)
			}

			if run.Status == model.RunFailed {
				return fmt.Errorf("detection run %s failed", run.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pagesPath, "pages", "pages.yaml", "YAML file listing the pages to check")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run as JSON")
	return cmd
}

package backup

import (
	"encoding/json"
	"fmt"
	"io"
)

// ServiceFiles lists the files written for one service.
type ServiceFiles struct {
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

// Summary is the result of a backup run. Services appear in processing
// order; services without running containers are not listed.
type Summary struct {
	Services  []ServiceFiles `json:"services"`
	OutputDir string         `json:"outputDir"`
}

func newSummary(outDir string) *Summary {
	return &Summary{Services: []ServiceFiles{}, OutputDir: outDir}
}

// add appends files to svc, creating its entry on first use.
func (s *Summary) add(svc string, files ...string) {
	for i := range s.Services {
		if s.Services[i].Name == svc {
			s.Services[i].Files = append(s.Services[i].Files, files...)
			return
		}
	}
	if files == nil {
		files = []string{}
	}
	s.Services = append(s.Services, ServiceFiles{Name: svc, Files: files})
}

// files returns every file of the summary in order.
func (s *Summary) files() []string {
	var out []string
	for _, svc := range s.Services {
		out = append(out, svc.Files...)
	}
	return out
}

// WriteText prints the human-readable summary block.
func (s *Summary) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "\n=== Backup Summary ==="); err != nil {
		return err
	}
	for _, svc := range s.Services {
		if _, err := fmt.Fprintf(w, "Service: %s\n", svc.Name); err != nil {
			return err
		}
		for _, f := range svc.Files {
			if _, err := fmt.Fprintf(w, " - %s\n", f); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintf(w, "Output directory: %s\n", s.OutputDir)
	return err
}

// WriteJSON prints the summary as an indented JSON object.
func (s *Summary) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

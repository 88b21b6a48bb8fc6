package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"
)

// Scenario is one executable scenario (one row of an outline).
type Scenario struct {
	Feature string
	File    string
	// Line is the scenario line, or the example row line for outlines.
	Line int64
	// DefinitionLine is the line of the Scenario keyword. Filtering a run
	// by file:line uses it.
	DefinitionLine int64
	Name           string
	Tags           []string
	Steps          []Step
}

// Location returns "file:line".
func (s *Scenario) Location() string {
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}

// Key identifies a scenario by file, name and step texts, which is what a
// running pickle exposes.
func (s *Scenario) Key() string {
	texts := make([]string, len(s.Steps))
	for i, st := range s.Steps {
		texts[i] = st.Text
	}
	return ScenarioKey(s.File, s.Name, texts)
}

// ScenarioKey builds the key used by Scenario.Key. Relative and absolute
// spellings of the same file produce the same key.
func ScenarioKey(file, name string, stepTexts []string) string {
	if abs, err := filepath.Abs(file); err == nil {
		file = abs
	}
	return file + "\x00" + name + "\x00" + strings.Join(stepTexts, "\x00")
}

// Step is one step of a scenario, background steps included.
type Step struct {
	Keyword   string
	Text      string
	Line      int64
	DataTable [][]string
	DocString string
}

// ParseFile parses a feature file into scenarios, one per pickle.
func ParseFile(path string) ([]Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	newID := (&messages.Incrementing{}).NewId
	doc, err := gherkin.ParseGherkinDocument(f, newID)
	if err != nil {
		return nil, err
	}
	if doc.Feature == nil {
		return nil, nil
	}

	ast := indexDocument(doc.Feature)
	pickles := gherkin.Pickles(*doc, path, newID)

	scenarios := make([]Scenario, 0, len(pickles))
	for _, p := range pickles {
		sc := Scenario{
			Feature: doc.Feature.Name,
			File:    path,
			Name:    p.Name,
		}
		if len(p.AstNodeIds) > 0 {
			sc.DefinitionLine = ast.lines[p.AstNodeIds[0]]
			sc.Line = ast.lines[p.AstNodeIds[len(p.AstNodeIds)-1]]
		}
		for _, t := range p.Tags {
			sc.Tags = append(sc.Tags, t.Name)
		}
		for _, ps := range p.Steps {
			sc.Steps = append(sc.Steps, buildStep(ps, ast))
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func buildStep(ps *messages.PickleStep, ast astIndex) Step {
	step := Step{Text: ps.Text}
	if len(ps.AstNodeIds) > 0 {
		id := ps.AstNodeIds[0]
		step.Keyword = strings.TrimSpace(ast.keywords[id])
		step.Line = ast.lines[id]
	}
	if arg := ps.Argument; arg != nil {
		if arg.DocString != nil {
			step.DocString = arg.DocString.Content
		}
		if arg.DataTable != nil {
			for _, row := range arg.DataTable.Rows {
				cells := make([]string, len(row.Cells))
				for i, c := range row.Cells {
					cells[i] = c.Value
				}
				step.DataTable = append(step.DataTable, cells)
			}
		}
	}
	return step
}

// astIndex maps AST node IDs to their source line and step keyword.
type astIndex struct {
	lines    map[string]int64
	keywords map[string]string
}

func indexDocument(feature *messages.Feature) astIndex {
	ast := astIndex{lines: map[string]int64{}, keywords: map[string]string{}}
	for _, child := range feature.Children {
		ast.addBackground(child.Background)
		ast.addScenario(child.Scenario)
		if child.Rule != nil {
			for _, rc := range child.Rule.Children {
				ast.addBackground(rc.Background)
				ast.addScenario(rc.Scenario)
			}
		}
	}
	return ast
}

func (a astIndex) addBackground(bg *messages.Background) {
	if bg == nil {
		return
	}
	a.addSteps(bg.Steps)
}

func (a astIndex) addScenario(sc *messages.Scenario) {
	if sc == nil {
		return
	}
	a.lines[sc.Id] = sc.Location.Line
	a.addSteps(sc.Steps)
	for _, ex := range sc.Examples {
		for _, row := range ex.TableBody {
			a.lines[row.Id] = row.Location.Line
		}
	}
}

func (a astIndex) addSteps(steps []*messages.Step) {
	for _, s := range steps {
		a.lines[s.Id] = s.Location.Line
		a.keywords[s.Id] = s.Keyword
	}
}

package llm

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/turtacn/livecare/pkg/errors"
)

// Prompt names shipped in the prompt directory.
const (
	PromptExtractMetadata = "extract_metadata"
	PromptSummarizeDrug   = "summarize_drug_info"
	PromptCareChart       = "create_multidisciplinary_care"
	PromptEncounterChart  = "create_medical_chart"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Prompt is a parsed template file. A file with <system> and <user>
// elements yields two messages; any other XML document is used whole as
// the user message.
type Prompt struct {
	Name    string
	System  string
	User    string
	Version string
}

type promptFile struct {
	XMLName xml.Name `xml:"prompt"`
	Version string   `xml:"version,attr"`
	System  string   `xml:"system"`
	User    string   `xml:"user"`
}

// Placeholders lists the distinct {NAME} variables the prompt uses.
func (p *Prompt) Placeholders() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, text := range []string{p.System, p.User} {
		for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
			if _, ok := seen[m[1]]; !ok {
				seen[m[1]] = struct{}{}
				out = append(out, m[1])
			}
		}
	}
	return out
}

// Render substitutes vars into the template. Only names present in vars are
// replaced, so literal braces such as JSON examples stay intact.
func (p *Prompt) Render(vars map[string]string) (system, user string) {
	return render(p.System, vars), render(p.User, vars)
}

func render(text string, vars map[string]string) string {
	if text == "" || len(vars) == 0 {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// PromptLoader reads <dir>/<name>.xml once and caches the parsed prompt.
type PromptLoader struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*Prompt
}

func NewPromptLoader(dir string) *PromptLoader {
	return &PromptLoader{dir: dir, cache: make(map[string]*Prompt)}
}

// Load returns the named prompt.
func (l *PromptLoader) Load(name string) (*Prompt, error) {
	l.mu.RLock()
	p, ok := l.cache[name]
	l.mu.RUnlock()
	if ok {
		return p, nil
	}

	path := filepath.Join(l.dir, name+".xml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeNotFound, "llm: prompt %q not readable", path)
	}
	p, err = parsePrompt(name, raw)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[name] = p
	l.mu.Unlock()
	return p, nil
}

func parsePrompt(name string, raw []byte) (*Prompt, error) {
	var pf promptFile
	if err := xml.Unmarshal(raw, &pf); err == nil && strings.TrimSpace(pf.User) != "" {
		return &Prompt{
			Name:    name,
			System:  strings.TrimSpace(pf.System),
			User:    strings.TrimSpace(pf.User),
			Version: pf.Version,
		}, nil
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, errors.Newf(errors.ErrCodeValidation, "llm: prompt %q is empty", name)
	}
	return &Prompt{Name: name, User: text}, nil
}

package tasks

import (
	"os"
	"regexp"
	"strings"
)

// DefaultTitle is used when the document has no "# Tasks:" heading.
const DefaultTitle = "Untitled"

// MVPMarker flags a phase heading as the minimum viable product slice.
const MVPMarker = "🎯"

var (
	titleRe     = regexp.MustCompile(`^# Tasks: (.+)$`)
	inputRe     = regexp.MustCompile(`^\*\*Input\*\*: (.+)$`)
	branchRe    = regexp.MustCompile("^\\*\\*Branch\\*\\*: `?(.+?)`?$")
	phaseRe     = regexp.MustCompile(`^## Phase (\d+(?:\.\d+)*): (.+)$`)
	groupRe     = regexp.MustCompile(`^### (.+?)(?:\s*\((US\d+)\))?$`)
	taskRe      = regexp.MustCompile(`^- \[([ Xx])\] (T\d{3,4})\s*(\[P\])?\s*(\[US\d+\])?\s*(.+)$`)
	purposeRe   = regexp.MustCompile(`^\*\*Purpose\*\*:?\s*(.+)$`)
	goalRe      = regexp.MustCompile(`^\*\*Goal\*\*:?\s*(.+)$`)
	checkRe     = regexp.MustCompile(`^\*\*Checkpoint\*\*:?\s*(.+)$`)
	indepTestRe = regexp.MustCompile(`^\*\*Independent Test\*\*:?\s*(.+)$`)

	priorityRe        = regexp.MustCompile(`(?:Priority:\s*)?\b(P[1-4])\b`)
	priorityParenRe   = regexp.MustCompile(`\(\s*(?:Priority:\s*)?P[1-4]\s*\)`)
	userStoryRe       = regexp.MustCompile(`(?:User Story\s+(\d+)|\b(US\d+)\b)`)
	mvpWordRe         = regexp.MustCompile(`\bMVP\b`)
	phasePrefixRe     = regexp.MustCompile(`^Phase \d+(?:\.\d+)*:\s*`)
	multiSpaceRe      = regexp.MustCompile(`\s{2,}`)
	filePathRe        = regexp.MustCompile(`\b[\w-]+(?:/[\w/.-]+)+\.\w+`)
	trailingDashSepRe = regexp.MustCompile(`\s*[-–—]\s*$`)
)

// ExtractFilePaths returns every path-like token in text, in order.
func ExtractFilePaths(text string) []string {
	return filePathRe.FindAllString(text, -1)
}

// PhaseHeading is the result of splitting a phase heading into its parts.
type PhaseHeading struct {
	Title     string
	Priority  string
	UserStory string
	MVP       bool
}

// ParsePhaseHeading extracts the priority, user story and MVP marker from
// the text after "## Phase N: " and returns a cleaned display title.
//
//	"User Story 1 - Generate Connectors (Priority: P1) 🎯 MVP"
//	=> {Title: "User Story 1 - Generate Connectors", Priority: "P1", UserStory: "US1", MVP: true}
func ParsePhaseHeading(heading string) PhaseHeading {
	h := PhaseHeading{
		MVP: strings.Contains(heading, MVPMarker) || mvpWordRe.MatchString(heading),
	}
	if m := priorityRe.FindStringSubmatch(heading); m != nil {
		h.Priority = m[1]
	}
	if m := userStoryRe.FindStringSubmatch(heading); m != nil {
		if m[1] != "" {
			h.UserStory = "US" + m[1]
		} else {
			h.UserStory = m[2]
		}
	}

	title := strings.TrimSpace(heading)
	title = priorityParenRe.ReplaceAllString(title, "")
	title = priorityRe.ReplaceAllString(title, "")
	title = strings.ReplaceAll(title, MVPMarker, "")
	title = mvpWordRe.ReplaceAllString(title, "")
	title = strings.ReplaceAll(title, "()", "")
	title = multiSpaceRe.ReplaceAllString(title, " ")
	title = strings.TrimSpace(title)
	title = trailingDashSepRe.ReplaceAllString(title, "")
	title = phasePrefixRe.ReplaceAllString(title, "")
	h.Title = strings.TrimSpace(title)
	return h
}

// ParseFile reads and parses a tasks.md file from disk.
func ParseFile(path string) (*Document, []byte, error) {
	content, err := os.ReadFile(path) // #nosec G304 - path supplied by the user
	if err != nil {
		return nil, nil, err
	}
	return Parse(string(content)), content, nil
}

// Parse converts tasks.md text into a Document. It never fails: lines that
// match no rule are skipped, and tasks outside any phase are dropped.
func Parse(text string) *Document {
	p := &parser{doc: &Document{Title: DefaultTitle}}
	for _, line := range strings.Split(text, "\n") {
		p.line(strings.TrimSpace(line))
	}
	p.flushPhase()
	return p.doc
}

type parser struct {
	doc   *Document
	phase *Phase
	group *StoryGroup
}

func (p *parser) flushGroup() {
	if p.group != nil && p.phase != nil {
		p.phase.Groups = append(p.phase.Groups, p.group)
	}
	p.group = nil
}

func (p *parser) flushPhase() {
	p.flushGroup()
	if p.phase != nil {
		p.doc.Phases = append(p.doc.Phases, p.phase)
	}
	p.phase = nil
}

func (p *parser) line(line string) {
	if line == "" {
		return
	}
	if strings.HasPrefix(line, "##") && strings.Contains(line, "Format:") {
		return
	}

	if m := titleRe.FindStringSubmatch(line); m != nil {
		p.doc.Title = strings.TrimSpace(m[1])
		return
	}
	if m := inputRe.FindStringSubmatch(line); m != nil {
		p.doc.InputPath = strings.TrimSpace(m[1])
		return
	}
	if m := branchRe.FindStringSubmatch(line); m != nil {
		p.doc.Branch = strings.TrimSpace(m[1])
		return
	}

	if m := phaseRe.FindStringSubmatch(line); m != nil {
		p.flushPhase()
		h := ParsePhaseHeading(m[2])
		p.phase = &Phase{
			Number:    m[1],
			Title:     h.Title,
			Priority:  h.Priority,
			UserStory: h.UserStory,
			MVP:       h.MVP,
		}
		return
	}

	if p.phase != nil && strings.HasPrefix(line, "### ") {
		if m := groupRe.FindStringSubmatch(line); m != nil {
			p.flushGroup()
			p.group = &StoryGroup{Title: strings.TrimSpace(m[1]), UserStory: m[2]}
		}
		return
	}

	if p.phase != nil && p.group == nil && p.phaseMetadata(line) {
		return
	}

	if m := taskRe.FindStringSubmatch(line); m != nil {
		p.task(line, m)
	}
}

// phaseMetadata captures Purpose/Goal/Checkpoint/Independent Test lines.
func (p *parser) phaseMetadata(line string) bool {
	if m := purposeRe.FindStringSubmatch(line); m != nil {
		p.phase.Purpose = strings.TrimSpace(m[1])
		return true
	}
	if m := goalRe.FindStringSubmatch(line); m != nil {
		p.phase.Goal = strings.TrimSpace(m[1])
		return true
	}
	if m := checkRe.FindStringSubmatch(line); m != nil {
		p.phase.Checkpoint = strings.TrimSpace(m[1])
		return true
	}
	if m := indepTestRe.FindStringSubmatch(line); m != nil {
		p.phase.IndependentTest = strings.TrimSpace(m[1])
		return true
	}
	return false
}

func (p *parser) task(line string, m []string) {
	if p.phase == nil {
		return
	}
	desc := strings.TrimSpace(m[5])
	if strings.HasPrefix(desc, ":") {
		desc = strings.TrimSpace(desc[1:])
	}

	t := &Task{
		ID:          m[2],
		Description: desc,
		Completed:   strings.EqualFold(m[1], "x"),
		Parallel:    m[3] != "",
		UserStory:   strings.Trim(m[4], "[]"),
		FilePaths:   ExtractFilePaths(desc),
		PhaseNumber: p.phase.Number,
		RawLine:     line,
	}
	if p.group != nil {
		t.GroupTitle = p.group.Title
		p.group.Tasks = append(p.group.Tasks, t)
		return
	}
	p.phase.Tasks = append(p.phase.Tasks, t)
}

package inspect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobsync/internal/ingest"
	"github.com/amishk599/jobsync/internal/model"
)

// Lines per item in the list view (title + subtitle + blank separator).
const itemHeight = 3

// Payload previews are cut at this many bytes.
const maxPayloadPreview = 64 << 10

const timeLayout = "2006-01-02 15:04 MST"

type viewState int

const (
	viewList viewState = iota
	viewRawDetail
	viewJobDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	itemTitleStyle = lipgloss.NewStyle().
			Bold(true)

	itemSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(16)

	detailValueStyle = lipgloss.NewStyle()

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	bodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusColors = map[model.ProcessingStatus]lipgloss.Color{
		model.StatusPending:    lipgloss.Color("220"),
		model.StatusProcessing: lipgloss.Color("33"),
		model.StatusCompleted:  lipgloss.Color("42"),
		model.StatusFailed:     lipgloss.Color("196"),
	}
)

// Reprocessor re-runs ingestion for one stored raw response.
type Reprocessor interface {
	Reprocess(ctx context.Context, id int64) (ingest.Result, error)
}

// reprocessedMsg is sent when an async reprocess completes.
type reprocessedMsg struct {
	result ingest.Result
	err    error
}

type inspectModel struct {
	raws          []model.RawResponse
	jobs          []model.ExternalJobDetail
	leftViewport  viewport.Model
	rightViewport viewport.Model
	activePane    int // 0=raw responses, 1=external jobs
	leftCursor    int
	rightCursor   int
	width         int
	height        int
	ready         bool

	view           viewState
	detailRaw      model.RawResponse
	detailJob      model.ExternalJobDetail
	detailViewport viewport.Model
	showBody       bool

	reprocessor      Reprocessor
	reprocessLoading bool
	reprocessNote    string

	wantQuit bool
}

func (m inspectModel) Init() tea.Cmd {
	return nil
}

func (m inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view != viewList {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case reprocessedMsg:
		m.reprocessLoading = false
		if msg.err != nil {
			m.reprocessNote = fmt.Sprintf("reprocess failed: %v", msg.err)
		} else {
			r := msg.result
			m.reprocessNote = fmt.Sprintf("reprocessed: %s, %d new, %d duplicate, %d filtered",
				r.Status, len(r.NewJobs), r.Duplicates, r.Filtered)
			m.detailRaw.ProcessingStatus = r.Status
			m.detailRaw.ErrorMessage = r.Error
			m.updateRawInList(m.detailRaw)
		}
		m.detailViewport.SetContent(m.renderDetail())
		return m, nil

	case tea.KeyMsg:
		if m.view != viewList {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m inspectModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		m.wantQuit = false
		return m, tea.Quit
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		return m.openDetailView(), nil
	}

	// Forward other keys (pgup/pgdn/home/end) to the active viewport.
	var cmd tea.Cmd
	if m.activePane == 0 {
		m.leftViewport, cmd = m.leftViewport.Update(msg)
	} else {
		m.rightViewport, cmd = m.rightViewport.Update(msg)
	}
	return m, cmd
}

func (m inspectModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if m.view == viewJobDetail && m.detailJob.JobURL != "" {
			openURL(m.detailJob.JobURL)
		}
		return m, nil
	case "r", "p":
		m.showBody = !m.showBody
		m.detailViewport.SetContent(m.renderDetail())
		m.detailViewport.SetYOffset(0)
		return m, nil
	case "x":
		if m.view == viewRawDetail && m.reprocessor != nil && !m.reprocessLoading &&
			model.IsReprocessAllowed(m.detailRaw.ProcessingStatus) {
			m.reprocessLoading = true
			m.reprocessNote = ""
			m.detailViewport.SetContent(m.renderDetail())
			return m, m.reprocessCmd(m.detailRaw.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m inspectModel) reprocessCmd(id int64) tea.Cmd {
	rp := m.reprocessor
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		res, err := rp.Reprocess(ctx, id)
		return reprocessedMsg{result: res, err: err}
	}
}

func (m *inspectModel) moveCursor(delta int) {
	if m.activePane == 0 {
		m.leftCursor = clamp(m.leftCursor+delta, 0, max(len(m.raws)-1, 0))
	} else {
		m.rightCursor = clamp(m.rightCursor+delta, 0, max(len(m.jobs)-1, 0))
	}
}

func (m *inspectModel) ensureCursorVisible() {
	var vp *viewport.Model
	var cursor int
	if m.activePane == 0 {
		vp = &m.leftViewport
		cursor = m.leftCursor
	} else {
		vp = &m.rightViewport
		cursor = m.rightCursor
	}

	cursorTop := cursor * itemHeight
	cursorBottom := cursorTop + itemHeight - 1

	if cursorTop < vp.YOffset {
		vp.SetYOffset(cursorTop)
	} else if cursorBottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(cursorBottom - vp.Height + 1)
	}
}

func (m inspectModel) openDetailView() inspectModel {
	if m.activePane == 0 {
		if len(m.raws) == 0 {
			return m
		}
		m.view = viewRawDetail
		m.detailRaw = m.raws[m.leftCursor]
	} else {
		if len(m.jobs) == 0 {
			return m
		}
		m.view = viewJobDetail
		m.detailJob = m.jobs[m.rightCursor]
	}
	m.showBody = false
	m.reprocessNote = ""
	m.detailViewport = viewport.New(m.width-4, m.height-4)
	m.detailViewport.SetContent(m.renderDetail())
	return m
}

func (m *inspectModel) updateRawInList(raw model.RawResponse) {
	for i := range m.raws {
		if m.raws[i].ID == raw.ID {
			m.raws[i] = raw
			break
		}
	}
	m.recalcContent()
}

func (m *inspectModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)

	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.leftViewport = viewport.New(paneWidth, paneHeight)
		m.rightViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = paneWidth
		m.leftViewport.Height = paneHeight
		m.rightViewport.Width = paneWidth
		m.rightViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *inspectModel) recalcContent() {
	m.leftViewport.SetContent(renderRaws(m.raws, m.leftCursor, m.activePane == 0))
	m.rightViewport.SetContent(renderJobs(m.jobs, m.rightCursor, m.activePane == 1))
}

func (m inspectModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view != viewList {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m inspectModel) viewList() string {
	paneWidth := m.leftViewport.Width

	leftHeader := fmt.Sprintf(" Raw Responses (%d)", len(m.raws))
	rightHeader := fmt.Sprintf(" External Jobs (%d)", len(m.jobs))

	var leftHeaderRendered, rightHeaderRendered string
	var leftBorder, rightBorder lipgloss.Style

	if m.activePane == 0 {
		leftHeaderRendered = activeHeaderStyle.Render(leftHeader)
		rightHeaderRendered = inactiveHeaderStyle.Render(rightHeader)
		leftBorder = activeBorderStyle.Width(paneWidth)
		rightBorder = inactiveBorderStyle.Width(paneWidth)
	} else {
		leftHeaderRendered = inactiveHeaderStyle.Render(leftHeader)
		rightHeaderRendered = activeHeaderStyle.Render(rightHeader)
		leftBorder = inactiveBorderStyle.Width(paneWidth)
		rightBorder = activeBorderStyle.Width(paneWidth)
	}

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(paneWidth+2).Render(leftHeaderRendered),
		" ",
		lipgloss.NewStyle().Width(paneWidth+2).Render(rightHeaderRendered),
	)
	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		leftBorder.Render(m.leftViewport.View()), " ", rightBorder.Render(m.rightViewport.View()))

	counts := countStatuses(m.raws)
	statusText := fmt.Sprintf(" %d pending | %d failed | %d unsynced    ←/→/Tab switch  ↑/↓ cursor  Enter detail  Esc back  q quit",
		counts[model.StatusPending], counts[model.StatusFailed], countUnsynced(m.jobs))
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m inspectModel) viewDetail() string {
	label := "Raw Response"
	statusText := " p payload  esc/backspace back  ↑/↓ scroll  q quit"
	if m.view == viewJobDetail {
		label = "External Job"
		statusText = " o open URL  r desc  esc/backspace back  ↑/↓ scroll  q quit"
	} else if m.reprocessor != nil && model.IsReprocessAllowed(m.detailRaw.ProcessingStatus) {
		statusText = " p payload  x reprocess  esc/backspace back  ↑/↓ scroll  q quit"
	}
	title := detailTitleStyle.Render(label)
	if m.reprocessLoading {
		title += "  (reprocessing...)"
	}

	content := activeBorderStyle.Width(m.width - 2).Render(m.detailViewport.View())
	statusBar := statusBarStyle.Width(m.width).Render(statusText)
	return title + "\n" + content + "\n" + statusBar
}

func (m inspectModel) renderDetail() string {
	if m.view == viewJobDetail {
		return renderJobDetail(m.detailJob, m.showBody, m.width)
	}
	s := renderRawDetail(m.detailRaw, m.showBody, m.width)
	if m.reprocessNote != "" {
		s += "\n" + hintStyle.Render("  "+m.reprocessNote) + "\n"
	}
	return s
}

type fieldWriter struct {
	b strings.Builder
}

func (w *fieldWriter) add(label, value string) {
	if value == "" {
		return
	}
	w.b.WriteString(detailLabelStyle.Render(label))
	w.b.WriteString(detailValueStyle.Render(value))
	w.b.WriteByte('\n')
}

func divider(label string, width int) string {
	fill := strings.Repeat("─", max(width-len(label), 3))
	return dividerStyle.Render(label + fill)
}

func renderRawDetail(r model.RawResponse, showPayload bool, width int) string {
	var w fieldWriter
	w.add("ID", fmt.Sprint(r.ID))
	w.add("Run", r.RunID)
	w.add("Portal", r.PortalName)
	w.add("Keyword", r.Keyword)
	w.add("Status", string(r.ProcessingStatus))
	w.add("HTTP Status", fmt.Sprint(r.HTTPStatusCode))
	w.add("Size", fmt.Sprintf("%d bytes", r.ResponseSizeBytes))
	w.b.WriteByte('\n')
	w.add("Fetched At", r.CreatedAt.Local().Format(timeLayout))
	w.add("Updated At", r.UpdatedAt.Local().Format(timeLayout))
	w.add("API URL", r.APIURL)

	if r.ErrorMessage != "" {
		w.b.WriteByte('\n')
		w.b.WriteString(errorStyle.Render("⚠ "+r.ErrorMessage) + "\n")
	}

	wrapWidth := max(width-8, 20)
	w.b.WriteByte('\n')
	if showPayload {
		w.b.WriteString(divider("── Payload ", wrapWidth) + "\n\n")
		w.b.WriteString(bodyStyle.Render(payloadPreview(r.RawPayload)) + "\n")
	} else {
		w.b.WriteString(hintStyle.Render("  press p to view payload") + "\n")
	}
	return w.b.String()
}

func renderJobDetail(j model.ExternalJobDetail, showDescription bool, width int) string {
	var w fieldWriter
	w.add("Title", j.JobTitle)
	w.add("Company", j.CompanyName)
	w.add("Locations", strings.Join(j.Locations, ", "))
	w.add("Portal", j.PortalName)
	w.add("Portal Job ID", j.PortalJobID)
	w.add("Raw Response", fmt.Sprint(j.RawResponseID))
	w.b.WriteByte('\n')

	if j.MaxExperience > 0 {
		w.add("Experience", fmt.Sprintf("%d - %d yrs", j.MinExperience, j.MaxExperience))
	}
	if j.MaxSalary > 0 {
		w.add("Salary", fmt.Sprintf("%.0f - %.0f", j.MinSalary, j.MaxSalary))
	}
	w.add("Skills", strings.Join(j.Skills, ", "))
	w.add("Industries", strings.Join(j.Industries, ", "))
	if j.PostedDate != nil {
		w.add("Posted At", j.PostedDate.Local().Format(timeLayout))
	}
	w.add("Stored At", j.CreatedAt.Local().Format(timeLayout))
	w.b.WriteByte('\n')

	w.add("Synced", syncLabel(j))
	if j.CompanyID != 0 {
		w.add("Company ID", fmt.Sprint(j.CompanyID))
	}
	if j.DesignationID != 0 {
		w.add("Designation ID", fmt.Sprint(j.DesignationID))
	}
	w.add("Job URL", j.JobURL)

	if j.SyncError != "" {
		w.b.WriteByte('\n')
		w.b.WriteString(errorStyle.Render("⚠ "+j.SyncError) + "\n")
	}

	if j.Description != "" {
		wrapWidth := max(width-8, 20)
		w.b.WriteByte('\n')
		if showDescription {
			w.b.WriteString(divider("── Job Description ", wrapWidth) + "\n\n")
			w.b.WriteString(bodyStyle.Render(wordWrap(j.Description, wrapWidth)) + "\n")
		} else {
			w.b.WriteString(hintStyle.Render("  press r to read job description") + "\n")
		}
	}
	return w.b.String()
}

func syncLabel(j model.ExternalJobDetail) string {
	switch {
	case !j.IsSyncedToJobTable:
		return "pending"
	case j.SyncError != "":
		return "skipped"
	default:
		return "yes"
	}
}

// payloadPreview indents JSON payloads and truncates large ones.
func payloadPreview(payload []byte) string {
	if len(payload) == 0 {
		return "(empty)"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err == nil {
		payload = buf.Bytes()
	}
	if len(payload) > maxPayloadPreview {
		return string(payload[:maxPayloadPreview]) + "\n… (truncated)"
	}
	return string(payload)
}

func renderRaws(raws []model.RawResponse, cursor int, isActive bool) string {
	if len(raws) == 0 {
		return "  (no raw responses)"
	}

	var b strings.Builder
	for i, r := range raws {
		titleSt, subtitleSt, prefix := itemStyles(isActive && i == cursor)

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(fmt.Sprintf("#%d %s · %s", r.ID, r.PortalName, r.Keyword)))
		b.WriteByte('\n')

		status := lipgloss.NewStyle().Foreground(statusColors[r.ProcessingStatus]).Render(string(r.ProcessingStatus))
		b.WriteString(prefix)
		b.WriteString(status)
		b.WriteString(subtitleSt.Render(fmt.Sprintf(" · %s · %d bytes", r.CreatedAt.Local().Format("2006-01-02 15:04"), r.ResponseSizeBytes)))
		b.WriteByte('\n')

		if i < len(raws)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func renderJobs(jobs []model.ExternalJobDetail, cursor int, isActive bool) string {
	if len(jobs) == 0 {
		return "  (no jobs)"
	}

	var b strings.Builder
	for i, j := range jobs {
		titleSt, subtitleSt, prefix := itemStyles(isActive && i == cursor)

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(j.JobTitle))
		b.WriteByte('\n')

		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%s · %s · %s", j.CompanyName, strings.Join(j.Locations, "/"), syncLabel(j))))
		b.WriteByte('\n')

		if i < len(jobs)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func itemStyles(selected bool) (lipgloss.Style, lipgloss.Style, string) {
	if selected {
		return selectedTitleStyle, selectedSubtitleStyle, "> "
	}
	return itemTitleStyle, itemSubtitleStyle, "  "
}

func countStatuses(raws []model.RawResponse) map[model.ProcessingStatus]int {
	counts := make(map[model.ProcessingStatus]int)
	for _, r := range raws {
		counts[r.ProcessingStatus]++
	}
	return counts
}

func countUnsynced(jobs []model.ExternalJobDetail) int {
	n := 0
	for _, j := range jobs {
		if !j.IsSyncedToJobTable {
			n++
		}
	}
	return n
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Snapshot is the data shown by the inspector.
type Snapshot struct {
	Raws []model.RawResponse
	Jobs []model.ExternalJobDetail
}

// Source reads recent ingestion state.
type Source interface {
	ListRecentRaw(ctx context.Context, limit int) ([]model.RawResponse, error)
	ListExternalJobs(ctx context.Context, limit int) ([]model.ExternalJobDetail, error)
}

// LoadSnapshot reads up to limit rows of each kind, keeping only portal when it
// is not AllPortals.
func LoadSnapshot(ctx context.Context, src Source, portal string, limit int) (Snapshot, error) {
	raws, err := src.ListRecentRaw(ctx, limit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("listing raw responses: %w", err)
	}
	jobs, err := src.ListExternalJobs(ctx, limit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("listing external jobs: %w", err)
	}
	if portal == "" || portal == AllPortals {
		return Snapshot{Raws: raws, Jobs: jobs}, nil
	}

	snap := Snapshot{}
	for _, r := range raws {
		if r.PortalName == portal {
			snap.Raws = append(snap.Raws, r)
		}
	}
	for _, j := range jobs {
		if j.PortalName == portal {
			snap.Jobs = append(snap.Jobs, j)
		}
	}
	return snap, nil
}

// RunInspectTUI launches the split-pane inspector.
// reprocessor may be nil; when non-nil the 'x' key reprocesses a terminal raw response.
// Returns wantQuit=true if the user pressed q/ctrl+c, false if they pressed esc to return to the picker.
func RunInspectTUI(snap Snapshot, reprocessor Reprocessor) (bool, error) {
	m := inspectModel{
		raws:        snap.Raws,
		jobs:        snap.Jobs,
		reprocessor: reprocessor,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	final := result.(inspectModel)
	return final.wantQuit, nil
}

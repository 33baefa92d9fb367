package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"sshpilot/internal/config"
)

func (m *Model) updateForwardList(md modePortForwardingList, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	forwards := m.store.PortForwards()
	if md.cursor >= len(forwards) {
		md.cursor = len(forwards) - 1
	}
	if md.cursor < 0 {
		md.cursor = 0
	}

	switch msg.String() {
	case "esc", "q", "f":
		m.mode = modeConnectionList{}
		return m, nil

	case "up", "k":
		if md.cursor > 0 {
			md.cursor--
		}
	case "down", "j":
		if md.cursor < len(forwards)-1 {
			md.cursor++
		}

	case "s", "enter":
		if md.cursor < len(forwards) {
			m.toggleForward(forwards[md.cursor])
		}

	case "a", "n":
		if len(m.store.Connections()) == 0 {
			m.setError("add a connection first")
			return m, nil
		}
		m.mode = modePortForwardingFormNew{form: newForwardForm(config.PortForward{}, m.store.Connections())}
		return m, nil

	case "e":
		if md.cursor < len(forwards) {
			pf := forwards[md.cursor]
			if m.runtime.IsRunning(pf.ID) {
				m.setError("stop the tunnel before editing it")
				return m, nil
			}
			m.mode = modePortForwardingFormEdit{form: newForwardForm(pf, m.store.Connections())}
			return m, nil
		}

	case "d":
		if md.cursor < len(forwards) {
			m.mode = modePortForwardDeleteConfirmation{pf: forwards[md.cursor], returnCursor: md.cursor}
			return m, nil
		}
	}

	m.mode = md
	return m, nil
}

// toggleForward starts a stopped tunnel or stops a running one; bind errors
// surface immediately.
func (m *Model) toggleForward(pf config.PortForward) {
	if m.runtime.IsRunning(pf.ID) {
		m.runtime.Stop(pf.ID)
		m.setInfo("stopped " + pf.Name())
	} else if err := m.runtime.Start(pf); err != nil {
		m.setError(err.Error())
	} else {
		m.setInfo("started " + pf.Name())
	}
	m.reconcileForwardStatus()
}

// reconcileForwardStatus copies the runtime's view of every forward onto the
// stored specs, keeping the list rendering in step with the runtime.
func (m *Model) reconcileForwardStatus() {
	for _, pf := range m.store.PortForwards() {
		m.store.SetForwardStatus(pf.ID, m.runtime.Status(pf.ID))
	}
}

func (m *Model) viewForwardList(md modePortForwardingList) string {
	forwards := m.store.PortForwards()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Port forwards") + "\n\n")
	if len(forwards) == 0 {
		b.WriteString(descriptionStyle.Render("no forwards defined") + "\n")
	}
	for i, pf := range forwards {
		// The stored status is reconciled on every transition.
		line := fmt.Sprintf("%-10s %-34s %-20s %s",
			string(pf.Kind), pf.Name(), m.connLabel(pf.ConnectionID), renderForwardState(pf.Status))
		if i == md.cursor {
			line = selectedItemStyle.Render(line)
		} else {
			line = itemStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("s start/stop · a add · e edit · d delete · esc back"))
	return b.String()
}

func (m *Model) connLabel(connectionID string) string {
	if conn, ok := m.store.FindConnection(connectionID); ok {
		return conn.DisplayName
	}
	return "?"
}

func renderForwardState(status config.ForwardStatus) string {
	switch status.State {
	case config.ForwardRunning:
		return successStyle.Render("running")
	case config.ForwardFailed:
		return errorStyle.Render("failed: " + status.Reason)
	default:
		return descriptionStyle.Render("stopped")
	}
}

func (m *Model) updateForwardDelete(md modePortForwardDeleteConfirmation, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		m.runtime.Stop(md.pf.ID)
		if err := m.store.RemovePortForward(md.pf.ID); err != nil {
			m.setError(err.Error())
		} else {
			m.setInfo("deleted " + md.pf.Name())
		}
		m.mode = modePortForwardingList{cursor: md.returnCursor}
	case "n", "N", "esc":
		m.mode = modePortForwardingList{cursor: md.returnCursor}
	}
	return m, nil
}

func (m *Model) viewForwardDelete(md modePortForwardDeleteConfirmation) string {
	body := titleStyle.Render("Delete port forward") + "\n\n" +
		fmt.Sprintf("Remove %s?\nA running tunnel will be stopped first.\n\n", md.pf.Name()) +
		helpStyle.Render("y confirm · n cancel")
	return windowStyle.Render(body)
}

// Field order inside forwardForm.inputs.
const (
	fwdFieldName = iota
	fwdFieldLocalAddr
	fwdFieldLocalPort
	fwdFieldServiceHost
	fwdFieldServicePort
	fwdFieldBindAddr
	fwdFieldCount
)

// Virtual selector rows, cycled with left/right.
const (
	fwdConnRow = fwdFieldCount + iota
	fwdKindRow
)

// forwardForm edits one tunnel definition. Kind decides which rows are
// visible; the connection selector cycles the catalog.
type forwardForm struct {
	pf      config.PortForward
	conns   []config.Connection
	connIdx int
	kind    config.ForwardKind
	inputs  []textinput.Model

	focus   int
	errText string
}

func newForwardForm(pf config.PortForward, conns []config.Connection) *forwardForm {
	f := &forwardForm{
		pf:     pf,
		conns:  conns,
		kind:   pf.Kind,
		inputs: make([]textinput.Model, fwdFieldCount),
	}
	if f.kind == "" {
		f.kind = config.ForwardLocal
	}
	for i, c := range conns {
		if c.ID == pf.ConnectionID {
			f.connIdx = i
			break
		}
	}

	mk := func(placeholder, value string) textinput.Model {
		in := textinput.New()
		in.Placeholder = placeholder
		in.CharLimit = 255
		in.SetValue(value)
		return in
	}
	f.inputs[fwdFieldName] = mk("display name (optional)", pf.DisplayName)
	addr := pf.LocalAddr
	if addr == "" {
		addr = "127.0.0.1"
	}
	f.inputs[fwdFieldLocalAddr] = mk("127.0.0.1", addr)
	port := ""
	if pf.LocalPort != 0 {
		port = strconv.Itoa(int(pf.LocalPort))
	}
	f.inputs[fwdFieldLocalPort] = mk("listen port", port)
	f.inputs[fwdFieldServiceHost] = mk("service host", pf.ServiceHost)
	svcPort := ""
	if pf.ServicePort != 0 {
		svcPort = strconv.Itoa(int(pf.ServicePort))
	}
	f.inputs[fwdFieldServicePort] = mk("service port", svcPort)
	f.inputs[fwdFieldBindAddr] = mk("server bind (default 127.0.0.1)", pf.RemoteBindAddr)

	f.inputs[fwdFieldName].Focus()
	return f
}

func (f *forwardForm) rows() []int {
	rows := []int{fwdFieldName, fwdConnRow, fwdKindRow}
	switch f.kind {
	case config.ForwardLocal:
		rows = append(rows, fwdFieldLocalAddr, fwdFieldLocalPort, fwdFieldServiceHost, fwdFieldServicePort)
	case config.ForwardRemote:
		rows = append(rows, fwdFieldBindAddr, fwdFieldLocalPort, fwdFieldServiceHost, fwdFieldServicePort)
	case config.ForwardDynamic:
		rows = append(rows, fwdFieldLocalAddr, fwdFieldLocalPort)
	}
	return rows
}

func (f *forwardForm) focusedRow() int { return f.rows()[f.focus] }

func (f *forwardForm) move(delta int) {
	rows := f.rows()
	f.focus = (f.focus + delta + len(rows)) % len(rows)
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
	if row := f.focusedRow(); row < fwdFieldCount {
		f.inputs[row].Focus()
	}
}

func (f *forwardForm) cycleKind(delta int) {
	order := []config.ForwardKind{config.ForwardLocal, config.ForwardRemote, config.ForwardDynamic}
	for i, k := range order {
		if k == f.kind {
			f.kind = order[(i+delta+len(order))%len(order)]
			break
		}
	}
	if f.focus >= len(f.rows()) {
		f.focus = len(f.rows()) - 1
	}
}

func (f *forwardForm) cycleConn(delta int) {
	if len(f.conns) == 0 {
		return
	}
	f.connIdx = (f.connIdx + delta + len(f.conns)) % len(f.conns)
}

func (f *forwardForm) build() (config.PortForward, error) {
	pf := f.pf
	pf.Kind = f.kind
	pf.ConnectionID = f.conns[f.connIdx].ID
	pf.DisplayName = strings.TrimSpace(f.inputs[fwdFieldName].Value())
	pf.LocalAddr = strings.TrimSpace(f.inputs[fwdFieldLocalAddr].Value())
	if pf.LocalAddr == "" {
		pf.LocalAddr = "127.0.0.1"
	}
	pf.RemoteBindAddr = strings.TrimSpace(f.inputs[fwdFieldBindAddr].Value())
	pf.ServiceHost = ""
	pf.ServicePort = 0

	parsePort := func(idx int, label string) (uint16, error) {
		text := strings.TrimSpace(f.inputs[idx].Value())
		port, err := strconv.ParseUint(text, 10, 16)
		if err != nil || port == 0 {
			return 0, fmt.Errorf("invalid %s %q", label, text)
		}
		return uint16(port), nil
	}

	local, err := parsePort(fwdFieldLocalPort, "listen port")
	if err != nil {
		return pf, err
	}
	pf.LocalPort = local

	if f.kind != config.ForwardDynamic {
		pf.ServiceHost = strings.TrimSpace(f.inputs[fwdFieldServiceHost].Value())
		svc, err := parsePort(fwdFieldServicePort, "service port")
		if err != nil {
			return pf, err
		}
		pf.ServicePort = svc
	}

	if pf.ID == "" {
		fresh := config.NewPortForward(pf.ConnectionID, pf.Kind)
		pf.ID = fresh.ID
		pf.CreatedAt = fresh.CreatedAt
	}
	return pf, pf.Validate()
}

func (m *Model) updateForwardForm(f *forwardForm, msg tea.KeyMsg, isEdit bool) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modePortForwardingList{}
		return m, nil

	case "tab", "down":
		f.move(1)
		return m, nil

	case "shift+tab", "up":
		f.move(-1)
		return m, nil

	case "left", "right", " ":
		delta := 1
		if msg.String() == "left" {
			delta = -1
		}
		switch f.focusedRow() {
		case fwdKindRow:
			f.cycleKind(delta)
			return m, nil
		case fwdConnRow:
			f.cycleConn(delta)
			return m, nil
		}

	case "enter":
		if f.focus < len(f.rows())-1 {
			f.move(1)
			return m, nil
		}
		pf, err := f.build()
		if err != nil {
			f.errText = err.Error()
			return m, nil
		}
		if isEdit {
			err = m.store.UpdatePortForward(pf)
		} else {
			err = m.store.AddPortForward(pf)
		}
		if err != nil {
			f.errText = err.Error()
			return m, nil
		}
		m.mode = modePortForwardingList{}
		m.setInfo("saved " + pf.Name())
		return m, nil
	}

	if row := f.focusedRow(); row < fwdFieldCount {
		var cmd tea.Cmd
		f.inputs[row], cmd = f.inputs[row].Update(msg)
		return m, cmd
	}
	return m, nil
}

func (f *forwardForm) view(title string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title) + "\n\n")

	writeInput := func(label string, idx int) {
		b.WriteString(labelStyle.Render(label) + f.inputs[idx].View() + "\n")
	}
	writeSelector := func(label, value string, row int) {
		text := fmt.Sprintf("< %s >", value)
		if f.focusedRow() == row {
			text = selectedItemStyle.Render(text)
		} else {
			text = itemStyle.Render(text)
		}
		b.WriteString(labelStyle.Render(label) + text + "\n")
	}

	writeInput("Name", fwdFieldName)
	connName := "none"
	if len(f.conns) > 0 {
		connName = f.conns[f.connIdx].DisplayName
	}
	writeSelector("Connection", connName, fwdConnRow)
	writeSelector("Kind", string(f.kind), fwdKindRow)

	switch f.kind {
	case config.ForwardLocal:
		writeInput("Listen addr", fwdFieldLocalAddr)
		writeInput("Listen port", fwdFieldLocalPort)
		writeInput("Service host", fwdFieldServiceHost)
		writeInput("Service port", fwdFieldServicePort)
	case config.ForwardRemote:
		writeInput("Server bind", fwdFieldBindAddr)
		writeInput("Server port", fwdFieldLocalPort)
		writeInput("Service host", fwdFieldServiceHost)
		writeInput("Service port", fwdFieldServicePort)
	case config.ForwardDynamic:
		writeInput("Listen addr", fwdFieldLocalAddr)
		writeInput("Listen port", fwdFieldLocalPort)
	}

	if f.errText != "" {
		b.WriteString("\n" + errorStyle.Render(f.errText))
	}
	b.WriteString("\n" + helpStyle.Render("tab next · left/right cycle · enter save · esc cancel"))
	return windowStyle.Render(b.String())
}

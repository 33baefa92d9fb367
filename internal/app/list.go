package app

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"sshpilot/internal/config"
)

// connItem adapts a connection for the list widget.
type connItem struct {
	conn config.Connection
}

func (i connItem) Title() string { return i.conn.DisplayName }

func (i connItem) Description() string {
	desc := fmt.Sprintf("%s@%s:%d", i.conn.Username, i.conn.Host, i.conn.Port)
	if i.conn.LastUsed != nil {
		desc += "  last used " + i.conn.LastUsed.Format("2006-01-02 15:04")
	}
	return desc
}

func (i connItem) FilterValue() string { return i.conn.DisplayName + " " + i.conn.Host }

func newConnList() list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Connections"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.DisableQuitKeybindings()
	return l
}

// refreshConnItems reloads the catalog into the list widget, keeping the
// cursor in range.
func (m *Model) refreshConnItems() {
	conns := m.store.Connections()
	items := make([]list.Item, len(conns))
	for i, c := range conns {
		items[i] = connItem{conn: c}
	}
	m.connList.SetItems(items)
}

func (m *Model) selectedConnection() (config.Connection, bool) {
	item, ok := m.connList.SelectedItem().(connItem)
	if !ok {
		return config.Connection{}, false
	}
	return item.conn, true
}

func (m *Model) updateConnectionList(md modeConnectionList, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// While the list filter is open it owns every key.
	if m.connList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.connList, cmd = m.connList.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.shutdown()
		return m, tea.Quit

	case "enter":
		conn, ok := m.selectedConnection()
		if !ok {
			return m, nil
		}
		return m, m.startConnect(conn, md)

	case "n":
		m.mode = modeFormNew{form: newConnectionForm(config.Connection{}, m.store.Settings())}
		return m, nil

	case "e":
		if conn, ok := m.selectedConnection(); ok {
			m.mode = modeFormEdit{form: newConnectionForm(conn, m.store.Settings())}
		}
		return m, nil

	case "d":
		if conn, ok := m.selectedConnection(); ok {
			m.mode = modeDeleteConfirmation{conn: conn, returnCursor: m.connList.Index()}
		}
		return m, nil

	case "f":
		m.reconcileForwardStatus()
		m.mode = modePortForwardingList{}
		return m, nil
	}

	var cmd tea.Cmd
	m.connList, cmd = m.connList.Update(msg)
	return m, cmd
}

func (m *Model) viewConnectionList(modeConnectionList) string {
	help := helpStyle.Render("enter connect · n new · e edit · d delete · f forwards · q quit")
	return m.connList.View() + "\n" + help
}

func (m *Model) updateDeleteConfirmation(md modeDeleteConfirmation, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		if err := m.store.RemoveConnection(md.conn.ID); err != nil {
			m.setError(err.Error())
		} else {
			m.setInfo("deleted " + md.conn.DisplayName)
			m.refreshConnItems()
		}
		m.mode = modeConnectionList{}
		m.connList.Select(md.returnCursor)
		return m, nil
	case "n", "N", "esc":
		m.mode = modeConnectionList{}
		m.connList.Select(md.returnCursor)
		return m, nil
	}
	return m, nil
}

func (m *Model) viewDeleteConfirmation(md modeDeleteConfirmation) string {
	body := titleStyle.Render("Delete connection") + "\n\n" +
		fmt.Sprintf("Remove %s (%s@%s:%d)?\n", md.conn.DisplayName, md.conn.Username, md.conn.Host, md.conn.Port) +
		"Its port forwards will be removed as well.\n\n" +
		helpStyle.Render("y confirm · n cancel")
	return windowStyle.Render(body)
}

// shutdown tears down live resources on quit.
func (m *Model) shutdown() {
	m.runtime.StopAll()
	if m.shell != nil {
		m.shell.Close()
	}
	if m.session != nil {
		m.session.Close("quit")
	}
}

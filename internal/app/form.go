package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"sshpilot/internal/config"
)

// Field order inside connectionForm.inputs.
const (
	fieldName = iota
	fieldHost
	fieldPort
	fieldUser
	fieldPassword
	fieldKeyPath
	fieldPassphrase
	fieldCount
)

// connectionForm edits one connection. The auth method is a virtual row
// after the username, cycled with left/right; it decides which secret
// fields are visible.
type connectionForm struct {
	conn     config.Connection
	settings config.AppSettings
	inputs   []textinput.Model
	auth     config.AuthKind

	// focus walks the visible rows; the auth selector sits at authRow.
	focus   int
	errText string
}

const authRow = fieldUser + 1

func newConnectionForm(conn config.Connection, settings config.AppSettings) *connectionForm {
	f := &connectionForm{
		conn:     conn,
		settings: settings,
		auth:     conn.AuthKind,
		inputs:   make([]textinput.Model, fieldCount),
	}
	if f.auth == "" {
		f.auth = config.AuthPassword
	}

	mk := func(placeholder, value string) textinput.Model {
		in := textinput.New()
		in.Placeholder = placeholder
		in.CharLimit = 255
		in.SetValue(value)
		return in
	}
	f.inputs[fieldName] = mk("display name", conn.DisplayName)
	f.inputs[fieldHost] = mk("host or address", conn.Host)
	port := ""
	if conn.Port != 0 {
		port = strconv.Itoa(int(conn.Port))
	}
	f.inputs[fieldPort] = mk(fmt.Sprintf("port (default %d)", settings.DefaultPort), port)
	f.inputs[fieldUser] = mk("username", conn.Username)
	f.inputs[fieldPassword] = mk("password", conn.Password)
	f.inputs[fieldPassword].EchoMode = textinput.EchoPassword
	f.inputs[fieldKeyPath] = mk("~/.ssh/id_ed25519", conn.PrivateKeyPath)
	f.inputs[fieldPassphrase] = mk("passphrase (optional)", conn.Passphrase)
	f.inputs[fieldPassphrase].EchoMode = textinput.EchoPassword

	f.inputs[fieldName].Focus()
	return f
}

// rows lists the focusable rows for the current auth method: input indices
// plus authRow for the selector.
func (f *connectionForm) rows() []int {
	rows := []int{fieldName, fieldHost, fieldPort, fieldUser, authRow}
	switch f.auth {
	case config.AuthPassword:
		rows = append(rows, fieldPassword)
	case config.AuthPrivateKey:
		rows = append(rows, fieldKeyPath, fieldPassphrase)
	}
	return rows
}

func (f *connectionForm) focusedRow() int { return f.rows()[f.focus] }

func (f *connectionForm) move(delta int) {
	rows := f.rows()
	f.focus = (f.focus + delta + len(rows)) % len(rows)
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
	if row := f.focusedRow(); row < fieldCount {
		f.inputs[row].Focus()
	}
}

func (f *connectionForm) cycleAuth(delta int) {
	order := []config.AuthKind{config.AuthPassword, config.AuthPrivateKey, config.AuthAgent}
	for i, k := range order {
		if k == f.auth {
			f.auth = order[(i+delta+len(order))%len(order)]
			break
		}
	}
	// The focus index may now point past the shrunken row list.
	if f.focus >= len(f.rows()) {
		f.focus = len(f.rows()) - 1
	}
}

// applySSHHost fills the form from a resolved ssh_config entry. The display
// name keeps whatever the user typed.
func (f *connectionForm) applySSHHost(h config.SSHHost) {
	f.inputs[fieldHost].SetValue(h.Hostname)
	f.inputs[fieldPort].SetValue(strconv.Itoa(int(h.Port)))
	if h.User != "" {
		f.inputs[fieldUser].SetValue(h.User)
	}
	if h.IdentityFile != "" {
		f.auth = config.AuthPrivateKey
		f.inputs[fieldKeyPath].SetValue(h.IdentityFile)
	}
	f.errText = ""
}

// build assembles and validates the resulting connection.
func (f *connectionForm) build() (config.Connection, error) {
	conn := f.conn
	conn.DisplayName = strings.TrimSpace(f.inputs[fieldName].Value())
	conn.Host = strings.TrimSpace(f.inputs[fieldHost].Value())
	conn.Username = strings.TrimSpace(f.inputs[fieldUser].Value())
	conn.AuthKind = f.auth
	conn.Password = ""
	conn.PrivateKeyPath = ""
	conn.Passphrase = ""
	switch f.auth {
	case config.AuthPassword:
		conn.Password = f.inputs[fieldPassword].Value()
	case config.AuthPrivateKey:
		conn.PrivateKeyPath = strings.TrimSpace(f.inputs[fieldKeyPath].Value())
		conn.Passphrase = f.inputs[fieldPassphrase].Value()
	}

	portText := strings.TrimSpace(f.inputs[fieldPort].Value())
	if portText == "" {
		conn.Port = f.settings.DefaultPort
	} else {
		port, err := strconv.ParseUint(portText, 10, 16)
		if err != nil || port == 0 {
			return conn, fmt.Errorf("invalid port %q", portText)
		}
		conn.Port = uint16(port)
	}
	if conn.DisplayName == "" {
		conn.DisplayName = conn.Host
	}
	if conn.ID == "" {
		fresh := config.NewConnection(conn.Host, conn.Port, conn.Username, conn.AuthKind)
		conn.ID = fresh.ID
		conn.CreatedAt = fresh.CreatedAt
	}
	return conn, conn.Validate()
}

func (m *Model) updateConnectionForm(f *connectionForm, msg tea.KeyMsg, isEdit bool) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeConnectionList{}
		return m, nil

	case "tab":
		// On the key path row tab extends the path instead of moving on.
		if f.focusedRow() == fieldKeyPath {
			f.inputs[fieldKeyPath].SetValue(completeLocalPath(f.inputs[fieldKeyPath].Value()))
			f.inputs[fieldKeyPath].CursorEnd()
			return m, nil
		}
		f.move(1)
		return m, nil

	case "down":
		f.move(1)
		return m, nil

	case "shift+tab", "up":
		f.move(-1)
		return m, nil

	case "ctrl+l":
		alias := strings.TrimSpace(f.inputs[fieldHost].Value())
		if alias == "" {
			f.errText = "enter a host alias to import"
			return m, nil
		}
		h, err := config.QuerySSHConfig(alias)
		if err != nil {
			f.errText = err.Error()
			return m, nil
		}
		f.applySSHHost(h)
		return m, nil

	case "left", "right", " ":
		if f.focusedRow() == authRow {
			if msg.String() == "left" {
				f.cycleAuth(-1)
			} else {
				f.cycleAuth(1)
			}
			return m, nil
		}

	case "enter":
		if f.focus < len(f.rows())-1 {
			f.move(1)
			return m, nil
		}
		conn, err := f.build()
		if err != nil {
			f.errText = err.Error()
			return m, nil
		}
		if isEdit {
			err = m.store.UpdateConnection(conn)
		} else {
			err = m.store.AddConnection(conn)
		}
		if err != nil {
			f.errText = err.Error()
			return m, nil
		}
		m.refreshConnItems()
		m.mode = modeConnectionList{}
		m.setInfo("saved " + conn.DisplayName)
		return m, nil
	}

	if row := f.focusedRow(); row < fieldCount {
		var cmd tea.Cmd
		f.inputs[row], cmd = f.inputs[row].Update(msg)
		return m, cmd
	}
	return m, nil
}

func (f *connectionForm) view(title string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title) + "\n\n")

	writeInput := func(label string, idx int) {
		b.WriteString(labelStyle.Render(label) + f.inputs[idx].View() + "\n")
	}
	writeInput("Name", fieldName)
	writeInput("Host", fieldHost)
	writeInput("Port", fieldPort)
	writeInput("User", fieldUser)

	authText := fmt.Sprintf("< %s >", f.auth)
	if f.focusedRow() == authRow {
		authText = selectedItemStyle.Render(authText)
	} else {
		authText = itemStyle.Render(authText)
	}
	b.WriteString(labelStyle.Render("Auth") + authText + "\n")

	switch f.auth {
	case config.AuthPassword:
		writeInput("Password", fieldPassword)
	case config.AuthPrivateKey:
		writeInput("Key file", fieldKeyPath)
		writeInput("Passphrase", fieldPassphrase)
	}

	if f.errText != "" {
		b.WriteString("\n" + errorStyle.Render(f.errText))
	}
	b.WriteString("\n" + helpStyle.Render("tab next · ctrl+l import ssh config · enter save · esc cancel"))
	return windowStyle.Render(b.String())
}

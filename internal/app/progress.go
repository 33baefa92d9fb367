package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"sshpilot/internal/transfer"
)

type fileState int

const (
	filePending fileState = iota
	fileActive
	fileDone
	fileFailed
)

type jobFile struct {
	label       string
	size        int64
	transferred int64
	state       fileState
	err         error
}

// transferJob is the controller-side view of one running batch. The cmd
// goroutine plans and copies; the event loop mutates this struct only
// through absorb.
type transferJob struct {
	title     string
	cancel    context.CancelFunc
	files     []jobFile
	planned   bool
	done      bool
	cancelled bool
	summary   transfer.Summary
}

func newTransferJob(title string) *transferJob {
	return &transferJob{title: title}
}

// runCmd plans the batch (walking directories crosses the network, so it
// happens off the event loop) and runs it, streaming updates through send.
// The returned message is the aggregate outcome.
func (job *transferJob) runCmd(send func(tea.Msg), mode transfer.Mode, src transfer.FS, srcPath string, dst transfer.FS, dstPath string, isDir bool) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	job.cancel = cancel

	return func() tea.Msg {
		defer cancel()

		var man transfer.Manifest
		var err error
		if isDir {
			man, err = transfer.Walk(src, srcPath, dst, dstPath)
		} else {
			man, err = transfer.WalkFile(src, srcPath, dstPath)
		}
		if err != nil {
			return transferDoneMsg{summary: transfer.Summary{Failed: 1, Errs: []error{err}}}
		}

		tasks := make([]transfer.Task, len(man.Files))
		files := make([]jobFile, len(man.Files))
		for i, fp := range man.Files {
			tasks[i] = transfer.Task{
				Mode: mode,
				Src:  src,
				Dst:  dst,
				From: fp.Src,
				To:   fp.Dst,
				Size: fp.Size,
			}
			files[i] = jobFile{label: relativeLabel(srcPath, fp.Src), size: fp.Size}
		}
		send(transferPlannedMsg{files: files})

		progress := make(chan transfer.Progress, 64)
		complete := make(chan transfer.Completion, 8)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for progress != nil || complete != nil {
				select {
				case p, ok := <-progress:
					if !ok {
						progress = nil
						continue
					}
					send(transferProgressMsg(p))
				case c, ok := <-complete:
					if !ok {
						complete = nil
						continue
					}
					send(transferFileDoneMsg(c))
				}
			}
		}()

		sum := transfer.Run(ctx, transfer.Batch{Dst: dst, Dirs: man.Directories, Tasks: tasks}, progress, complete)
		close(progress)
		close(complete)
		wg.Wait()
		return transferDoneMsg{summary: sum}
	}
}

// relativeLabel trims the planned source root from a file path for display.
func relativeLabel(root, full string) string {
	if full == root {
		return full[strings.LastIndexByte(full, '/')+1:]
	}
	if rel, found := strings.CutPrefix(full, root+"/"); found {
		return rel
	}
	return full
}

func (job *transferJob) absorb(msg tea.Msg) {
	switch msg := msg.(type) {
	case transferPlannedMsg:
		job.files = msg.files
		job.planned = true
	case transferProgressMsg:
		if msg.Index < 0 || msg.Index >= len(job.files) {
			return
		}
		f := &job.files[msg.Index]
		if f.state == filePending {
			f.state = fileActive
		}
		// Updates may be dropped under load but never run backwards.
		if msg.Transferred > f.transferred {
			f.transferred = msg.Transferred
		}
	case transferFileDoneMsg:
		if msg.Index < 0 || msg.Index >= len(job.files) {
			return
		}
		f := &job.files[msg.Index]
		if msg.Err != nil {
			f.state = fileFailed
			f.err = msg.Err
		} else {
			f.state = fileDone
			f.transferred = f.size
		}
	case transferDoneMsg:
		job.done = true
		job.summary = msg.summary
	}
}

func (job *transferJob) totals() (transferred, total int64) {
	for _, f := range job.files {
		transferred += f.transferred
		total += f.size
	}
	return transferred, total
}

func (m *Model) updateScpProgress(md modeScpProgress, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	job := md.job

	if job.done {
		switch msg.String() {
		case "enter", "esc", "q":
			m.mode = md.returnMode
			if fe, ok := md.returnMode.(modeFileExplorer); ok {
				// Listings are stale after a copy either way.
				return m, tea.Batch(
					fe.ex.loadCmd(paneLocal, fe.ex.panes[paneLocal].path),
					fe.ex.loadCmd(paneRemote, fe.ex.panes[paneRemote].path),
				)
			}
			if _, ok := md.returnMode.(modeConnected); ok {
				m.invalidateShell()
				return m, tea.EnableMouseCellMotion
			}
		}
		return m, nil
	}

	if msg.String() == "esc" && !job.cancelled {
		job.cancelled = true
		if job.cancel != nil {
			job.cancel()
		}
	}
	return m, nil
}

func (m *Model) viewScpProgress(md modeScpProgress) string {
	job := md.job
	var b strings.Builder
	b.WriteString(titleStyle.Render("Transfer · " + job.title))
	b.WriteString("\n\n")

	if !job.planned && !job.done {
		b.WriteString(descriptionStyle.Render("preparing file list..."))
		b.WriteString("\n")
	}

	barWidth := m.width - 40
	if barWidth < 10 {
		barWidth = 10
	}
	visible := m.height - 8
	if visible < 1 {
		visible = 1
	}
	start := 0
	if active := job.firstUnfinished(); active >= visible {
		start = active - visible + 1
	}
	for i := start; i < len(job.files) && i < start+visible; i++ {
		f := job.files[i]
		b.WriteString(renderFileProgress(f, barWidth))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	transferred, total := job.totals()
	if job.done {
		line := fmt.Sprintf("%d transferred, %d failed", job.summary.Done, job.summary.Failed)
		if job.summary.Failed > 0 {
			b.WriteString(errorStyle.Render(line))
			for _, err := range job.summary.Errs {
				b.WriteString("\n" + descriptionStyle.Render("  "+err.Error()))
			}
		} else {
			b.WriteString(successStyle.Render(line))
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter to continue"))
	} else {
		b.WriteString(fmt.Sprintf("%s / %s", formatSize(transferred), formatSize(total)))
		b.WriteString("\n")
		if job.cancelled {
			b.WriteString(errorStyle.Render("cancelling..."))
		} else {
			b.WriteString(helpStyle.Render("esc to cancel"))
		}
	}
	return b.String()
}

func (job *transferJob) firstUnfinished() int {
	for i, f := range job.files {
		if f.state == filePending || f.state == fileActive {
			return i
		}
	}
	return len(job.files) - 1
}

func renderFileProgress(f jobFile, barWidth int) string {
	filled := 0
	if f.size > 0 {
		filled = int(f.transferred * int64(barWidth) / f.size)
	} else if f.state == fileDone {
		filled = barWidth
	}
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	label := f.label
	if len(label) > 24 {
		label = "…" + label[len(label)-23:]
	}
	line := fmt.Sprintf("%-24s %s %8s", label, bar, formatSize(f.size))
	switch f.state {
	case fileFailed:
		return errorStyle.Render(line + "  " + f.err.Error())
	case fileDone:
		return successStyle.Render(line)
	default:
		return line
	}
}

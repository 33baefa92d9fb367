package transfer

import (
	"context"
	"io"

	"sshpilot/internal/apperr"
	"sshpilot/internal/logging"
)

const chunkSize = 32 * 1024

// Mode labels which direction a task moves data; the engine itself only
// sees the two FS ends.
type Mode int

const (
	Send Mode = iota
	Receive
	SSHToSSH
)

func (m Mode) String() string {
	switch m {
	case Send:
		return "send"
	case Receive:
		return "receive"
	default:
		return "ssh-to-ssh"
	}
}

// Task is one file copy between two endpoints. Size is advisory; a zero or
// negative value means unknown.
type Task struct {
	Mode Mode
	Src  FS
	Dst  FS
	From string
	To   string
	Size int64
}

// Progress is a byte-count update for the task at Index. Intermediate
// updates may be dropped under backpressure; the final update for each task
// is always delivered.
type Progress struct {
	Index       int
	Transferred int64
	Total       int64
}

// Completion reports a task reaching a terminal state.
type Completion struct {
	Index int
	Err   error
}

// Batch is a prepared plan: destination directories in creatable order,
// then the file tasks.
type Batch struct {
	Dst   FS
	Dirs  []string
	Tasks []Task
}

// Summary is the aggregate outcome of a batch run.
type Summary struct {
	Done   int
	Failed int
	Errs   []error
}

// Run executes the batch sequentially. Progress updates go to progress with
// drop-on-backpressure; completions go to complete and may block briefly.
// Cancellation marks the running and remaining tasks failed; a dead
// transport fails the remainder without attempting it.
func Run(ctx context.Context, b Batch, progress chan<- Progress, complete chan<- Completion) Summary {
	var sum Summary

	fail := func(idx int, err error) {
		sum.Failed++
		sum.Errs = append(sum.Errs, err)
		emitComplete(ctx, complete, Completion{Index: idx, Err: err})
	}

	for _, dir := range b.Dirs {
		if err := ctx.Err(); err != nil {
			failRemainder(ctx, &sum, 0, len(b.Tasks), complete,
				apperr.New(apperr.Transfer, "cancelled", err))
			return sum
		}
		if err := b.Dst.Mkdir(dir); err != nil {
			logging.Warnf("transfer", "mkdir %s: %v", dir, err)
			failRemainder(ctx, &sum, 0, len(b.Tasks), complete, err)
			return sum
		}
	}

	for i, task := range b.Tasks {
		if err := ctx.Err(); err != nil {
			failRemainder(ctx, &sum, i, len(b.Tasks), complete,
				apperr.New(apperr.Transfer, "cancelled", err))
			return sum
		}

		err := copyOne(ctx, i, task, progress)
		if err == nil {
			sum.Done++
			emitComplete(ctx, complete, Completion{Index: i})
			continue
		}

		fail(i, err)
		if apperr.IsKind(err, apperr.TransportClosed) {
			// The session is gone; everything after this task would fail
			// the same way.
			failRemainder(ctx, &sum, i+1, len(b.Tasks), complete, err)
			return sum
		}
	}
	return sum
}

func failRemainder(ctx context.Context, sum *Summary, from, to int, complete chan<- Completion, err error) {
	for i := from; i < to; i++ {
		sum.Failed++
		sum.Errs = append(sum.Errs, err)
		emitComplete(ctx, complete, Completion{Index: i, Err: err})
	}
}

// emitComplete delivers a terminal update; it never drops one, but gives up
// if the consumer is already gone with the context.
func emitComplete(ctx context.Context, complete chan<- Completion, c Completion) {
	if complete == nil {
		return
	}
	select {
	case complete <- c:
	case <-ctx.Done():
		select {
		case complete <- c:
		default:
		}
	}
}

// copyOne streams a single file in fixed chunks, reporting progress as it
// goes. The final progress update is delivered even under backpressure.
func copyOne(ctx context.Context, idx int, task Task, progress chan<- Progress) error {
	src, err := task.Src.Open(task.From)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := task.Dst.Create(task.To)
	if err != nil {
		return err
	}

	cur := Progress{Index: idx, Total: task.Size}
	buf := make([]byte, chunkSize)
	var copyErr error

	for {
		if err := ctx.Err(); err != nil {
			copyErr = apperr.New(apperr.Transfer, "cancelled", err)
			break
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				copyErr = werr
				break
			}
			cur.Transferred += int64(n)
			if progress != nil {
				select {
				case progress <- cur:
				default:
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			copyErr = rerr
			break
		}
	}

	if cerr := dst.Close(); cerr != nil && copyErr == nil {
		copyErr = cerr
	}

	// Terminal progress for this task; block until taken or cancelled.
	if progress != nil {
		select {
		case progress <- cur:
		case <-ctx.Done():
		}
	}
	return copyErr
}

package transfer

import (
	"os"

	"sshpilot/internal/apperr"
)

// FilePair is one file copy within a manifest.
type FilePair struct {
	Src  string
	Dst  string
	Size int64
}

// Manifest is a directory tree flattened into creatable order: Directories
// lists every destination directory with parents strictly before children,
// and Files lists each file copy with its source size.
type Manifest struct {
	Directories []string
	Files       []FilePair
}

// Walk expands srcRoot (a directory on src) into a manifest rooted at
// dstRoot on dst. Traversal is breadth-first; symlinked entries are resolved
// with Stat, so a link to a directory is descended into.
func Walk(src FS, srcRoot string, dst FS, dstRoot string) (Manifest, error) {
	m := Manifest{Directories: []string{dstRoot}}

	type pair struct{ from, to string }
	queue := []pair{{srcRoot, dstRoot}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		entries, err := src.ReadDir(cur.from)
		if err != nil {
			return Manifest{}, err
		}
		for _, e := range entries {
			srcPath := src.Join(cur.from, e.Name())
			dstPath := dst.Join(cur.to, e.Name())

			info := e
			if e.Mode()&os.ModeSymlink != 0 {
				resolved, err := src.Stat(srcPath)
				if err != nil {
					// Dangling links are skipped rather than failing the
					// whole plan.
					continue
				}
				info = resolved
			}

			switch {
			case info.IsDir():
				m.Directories = append(m.Directories, dstPath)
				queue = append(queue, pair{srcPath, dstPath})
			case info.Mode().IsRegular():
				m.Files = append(m.Files, FilePair{Src: srcPath, Dst: dstPath, Size: info.Size()})
			default:
				// Sockets, fifos and devices are not transferable.
			}
		}
	}
	return m, nil
}

// WalkFile builds a single-file manifest, validating that src names a
// regular file.
func WalkFile(src FS, srcPath string, dstPath string) (Manifest, error) {
	info, err := src.Stat(srcPath)
	if err != nil {
		return Manifest{}, err
	}
	if info.IsDir() {
		return Manifest{}, apperr.Newf(apperr.Validation, "%s is a directory", srcPath)
	}
	return Manifest{Files: []FilePair{{Src: srcPath, Dst: dstPath, Size: info.Size()}}}, nil
}

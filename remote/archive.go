package remote

import (
	"archive/tar"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
)

// ExtractCommand is the remote side of a copy: it unpacks a tar stream read
// from stdin into dest, creating dest first.
func ExtractCommand(dest string) string {
	return "mkdir -p " + Quote(dest) + " && tar -xf - -C " + Quote(dest)
}

// CheckSources fails if a source is missing, or is a directory while
// recursive is false. A symlinked source is checked through its target.
func CheckSources(sources []string, recursive bool) error {
	if len(sources) == 0 {
		return errors.New("no sources to copy")
	}
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return err
		}
		if info.IsDir() && !recursive {
			return errors.Errorf("%s is a directory and the copy is not recursive", src)
		}
	}
	return nil
}

// WriteArchive writes sources to w as a tar stream. Each source lands under
// its base name, so "binaries/master" and "master" both unpack into
// "<dest>/master" and merge, as with scp -r. A symlinked source is archived
// as what it points to; links below a source are kept as links.
func WriteArchive(w io.Writer, sources []string, recursive bool) error {
	if err := CheckSources(sources, recursive); err != nil {
		return err
	}

	tw := tar.NewWriter(w)
	for _, src := range sources {
		src = filepath.Clean(src)
		name := filepath.Base(src)

		root, err := filepath.EvalSymlinks(src)
		if err != nil {
			return errors.Wrapf(err, "resolving %s", src)
		}

		err = filepath.Walk(root, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			return addEntry(tw, p, path.Join(name, filepath.ToSlash(rel)), fi)
		})
		if err != nil {
			return errors.Wrapf(err, "archiving %s", src)
		}
	}

	return tw.Close()
}

func addEntry(tw *tar.Writer, file, name string, fi os.FileInfo) error {
	var link string
	if fi.Mode()&os.ModeSymlink != 0 {
		l, err := os.Readlink(file)
		if err != nil {
			return err
		}
		link = l
	}

	hdr, err := tar.FileInfoHeader(fi, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if fi.IsDir() {
		hdr.Name += "/"
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}

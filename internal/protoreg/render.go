package protoreg

import (
	"io"
	"os"
	"path"

	"github.com/jhump/protoreflect/v2/protoprint"
)

// Render writes the proto definition of r below outDir.
func Render(r *Registry, outDir string) error {
	fp := path.Join(outDir, r.file.Path())
	if err := os.MkdirAll(path.Dir(fp), 0755); err != nil {
		return err
	}
	openedFile, err := os.OpenFile(fp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer openedFile.Close()
	return Print(r, openedFile)
}

// Print writes the proto definition of r to w.
func Print(r *Registry, w io.Writer) error {
	pp := protoprint.Printer{}
	return pp.PrintProtoFile(r.file, w)
}

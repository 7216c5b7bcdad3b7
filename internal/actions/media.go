package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hanpama/dalgraph/internal/association"
	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/registry"
	"github.com/hanpama/dalgraph/internal/schema"
)

// Entities and fields the media actions work on.
const (
	MediaEntity       = "media"
	MediaFolderEntity = "media_folder"

	fieldFileName      = "fileName"
	fieldFileExtension = "fileExtension"
	fieldMediaFolderID = "mediaFolderId"
	fieldParentID      = "parentId"
)

// Argument names.
const (
	ArgFileName      = "fileName"
	ArgFileExtension = "fileExtension"
	ArgMediaID       = "mediaId"
	ArgMediaFolderID = "mediaFolderId"
)

var (
	// ErrEmptyFileName is returned when a media would be renamed to nothing.
	ErrEmptyFileName = errors.New("file name must not be empty")
	// ErrDuplicateFileName is returned when another media already uses a
	// file name and extension.
	ErrDuplicateFileName = errors.New("file name is already taken")
)

// media bundles what every media action needs.
type media struct {
	exec  dal.Executor
	def   *entity.Definition
	assoc *association.Resolver
}

func newMedia(provider entity.Provider, exec dal.Executor) (*media, error) {
	def, err := provider.Definition(MediaEntity)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{fieldFileName, fieldFileExtension} {
		if def.Field(name) == nil {
			return nil, fmt.Errorf("%s has no %s field", MediaEntity, name)
		}
	}
	return &media{
		exec:  exec,
		def:   def,
		assoc: association.NewResolver(provider, criteria.NewParser(provider)),
	}, nil
}

// taken lists the file names used by media with the given extension whose
// name starts with fileName, skipping the media excluded.
func (m *media) taken(ctx context.Context, fileName, fileExtension, excluded string) (map[string]bool, error) {
	c := criteria.New()
	c.AddFilter(
		&criteria.Equals{Field: criteria.Prefix(m.def.Name, fieldFileExtension), Value: fileExtension},
		&criteria.Contains{Field: criteria.Prefix(m.def.Name, fieldFileName), Value: fileName},
	)
	res, err := m.exec.Search(ctx, m.def, c)
	if err != nil {
		return nil, err
	}
	names := map[string]bool{}
	for _, rec := range res.Elements {
		if excluded != "" && rec.ID() == excluded {
			continue
		}
		if name, ok := rec[fieldFileName].(string); ok {
			names[name] = true
		}
	}
	return names, nil
}

func (m *media) find(ctx context.Context, id string, sel []*association.Selection) (entity.Record, error) {
	c := criteria.New().SetLimit(1)
	c.AddFilter(&criteria.Equals{Field: criteria.Prefix(m.def.Name, "id"), Value: id})
	if err := m.assoc.AddAssociations(c, sel, m.def); err != nil {
		return nil, err
	}
	res, err := m.exec.Search(ctx, m.def, c)
	if err != nil {
		return nil, err
	}
	if len(res.Elements) == 0 {
		return nil, fmt.Errorf("%s %q: %w", m.def.Name, id, dal.ErrNotFound)
	}
	return res.Elements[0], nil
}

// UniqueFileName returns fileName, or fileName with the first free "_(n)"
// suffix when another media already uses it with the same extension.
func (m *media) UniqueFileName(ctx context.Context, fileName, fileExtension, mediaID string) (string, error) {
	names, err := m.taken(ctx, fileName, fileExtension, mediaID)
	if err != nil {
		return "", err
	}
	candidate := fileName
	for n := 1; names[candidate]; n++ {
		candidate = fmt.Sprintf("%s_(%d)", fileName, n)
	}
	return candidate, nil
}

type provideFileName struct{ *media }

func (provideFileName) Description() string {
	return "Provides a unique filename based on the given one."
}

func (provideFileName) ReturnType(*registry.TypeRegistry) *schema.TypeRef {
	return schema.NonNullType(schema.NamedType("String"))
}

func (provideFileName) DefineArgs(*registry.TypeRegistry) []*schema.InputValue {
	return []*schema.InputValue{
		schema.NewInputValue(ArgFileName, "", schema.NonNullType(schema.NamedType("String"))),
		schema.NewInputValue(ArgFileExtension, "", schema.NonNullType(schema.NamedType("String"))),
		schema.NewInputValue(ArgMediaID, "The media the name is for; its own name does not count as taken", schema.NamedType("ID")),
	}
}

func (p provideFileName) Resolve(ctx context.Context, call registry.Call) (any, error) {
	fileName, _ := call.Args[ArgFileName].(string)
	fileExtension, _ := call.Args[ArgFileExtension].(string)
	mediaID, _ := call.Args[ArgMediaID].(string)
	return p.UniqueFileName(ctx, fileName, fileExtension, mediaID)
}

type renameMedia struct{ *media }

func (renameMedia) Description() string { return "Renames the file with the given ID." }

func (r renameMedia) ReturnType(tr *registry.TypeRegistry) *schema.TypeRef {
	return schema.NamedType(tr.ObjectType(r.def).Name)
}

func (renameMedia) DefineArgs(*registry.TypeRegistry) []*schema.InputValue {
	return []*schema.InputValue{
		schema.NewInputValue(ArgMediaID, "", schema.NonNullType(schema.NamedType("ID"))),
		schema.NewInputValue(ArgFileName, "", schema.NonNullType(schema.NamedType("String"))),
	}
}

func (r renameMedia) Resolve(ctx context.Context, call registry.Call) (any, error) {
	mediaID, _ := call.Args[ArgMediaID].(string)
	fileName, _ := call.Args[ArgFileName].(string)
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, ErrEmptyFileName
	}

	current, err := r.find(ctx, mediaID, nil)
	if err != nil {
		return nil, err
	}
	if current[fieldFileName] == fileName {
		return r.find(ctx, mediaID, call.Selection)
	}
	fileExtension, _ := current[fieldFileExtension].(string)
	names, err := r.taken(ctx, fileName, fileExtension, mediaID)
	if err != nil {
		return nil, err
	}
	if names[fileName] {
		return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateFileName, fileName, fileExtension)
	}

	if _, err := r.exec.Update(ctx, r.def, []map[string]any{{"id": mediaID, fieldFileName: fileName}}); err != nil {
		return nil, err
	}
	return r.find(ctx, mediaID, call.Selection)
}

type dissolveMediaFolder struct {
	exec   dal.Executor
	media  *entity.Definition
	folder *entity.Definition
}

func newDissolveMediaFolder(provider entity.Provider, exec dal.Executor) (*dissolveMediaFolder, error) {
	m, err := provider.Definition(MediaEntity)
	if err != nil {
		return nil, err
	}
	folder, err := provider.Definition(MediaFolderEntity)
	if err != nil {
		return nil, err
	}
	if m.Field(fieldMediaFolderID) == nil {
		return nil, fmt.Errorf("%s has no %s field", MediaEntity, fieldMediaFolderID)
	}
	return &dissolveMediaFolder{exec: exec, media: m, folder: folder}, nil
}

func (dissolveMediaFolder) Description() string {
	return "Moves the content of a media folder to its parent and deletes the folder."
}

func (dissolveMediaFolder) ReturnType(*registry.TypeRegistry) *schema.TypeRef {
	return schema.NamedType("ID")
}

func (dissolveMediaFolder) DefineArgs(*registry.TypeRegistry) []*schema.InputValue {
	return []*schema.InputValue{
		schema.NewInputValue(ArgMediaFolderID, "", schema.NonNullType(schema.NamedType("ID"))),
	}
}

func (d *dissolveMediaFolder) Resolve(ctx context.Context, call registry.Call) (any, error) {
	folderID, _ := call.Args[ArgMediaFolderID].(string)

	c := criteria.New().SetLimit(1)
	c.AddFilter(&criteria.Equals{Field: criteria.Prefix(d.folder.Name, "id"), Value: folderID})
	res, err := d.exec.Search(ctx, d.folder, c)
	if err != nil {
		return nil, err
	}
	if len(res.Elements) == 0 {
		return nil, fmt.Errorf("%s %q: %w", d.folder.Name, folderID, dal.ErrNotFound)
	}
	var parent any
	if p, ok := res.Elements[0][fieldParentID].(string); ok && p != "" {
		parent = p
	}

	if err := d.move(ctx, d.media, fieldMediaFolderID, folderID, parent); err != nil {
		return nil, err
	}
	if d.folder.Field(fieldParentID) != nil {
		if err := d.move(ctx, d.folder, fieldParentID, folderID, parent); err != nil {
			return nil, err
		}
	}
	if _, err := d.exec.Delete(ctx, d.folder, []map[string]any{{"id": folderID}}); err != nil {
		return nil, err
	}
	return folderID, nil
}

// move points every def row whose field is from at to instead.
func (d *dissolveMediaFolder) move(ctx context.Context, def *entity.Definition, field, from string, to any) error {
	c := criteria.New()
	c.AddFilter(&criteria.Equals{Field: criteria.Prefix(def.Name, field), Value: from})
	res, err := d.exec.Search(ctx, def, c)
	if err != nil {
		return err
	}
	if len(res.Elements) == 0 {
		return nil
	}
	payloads := make([]map[string]any, len(res.Elements))
	for i, rec := range res.Elements {
		payloads[i] = map[string]any{"id": rec.ID(), field: to}
	}
	_, err = d.exec.Update(ctx, def, payloads)
	return err
}

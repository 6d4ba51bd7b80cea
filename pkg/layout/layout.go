// Package layout resolves the fixed remote paths of a dataset from its root.
//
// Every function is a pure function of the root path: nothing here talks to
// the remote store. Paths are slash-separated and absolute.
//
// Layout of a dataset root:
//
//	<root>/README.yml                  user-supplied description
//	<root>/data/<identifier>           item payloads (flat)
//	<root>/.dtool/dtool                admin metadata
//	<root>/.dtool/manifest.json        manifest
//	<root>/.dtool/structure.json       this layout, self-described
//	<root>/.dtool/README.txt           boilerplate
//	<root>/.dtool/overlays/<name>.json overlays
//	<root>/.dtool/tmp_fragments        pre-freeze scratch area
package layout

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

const (
	dtoolDirName     = ".dtool"
	dataDirName      = "data"
	overlaysDirName  = "overlays"
	fragmentsDirName = "tmp_fragments"

	adminMetadataName = "dtool"
	manifestName      = "manifest.json"
	structureName     = "structure.json"
	dtoolReadmeName   = "README.txt"
	readmeName        = "README.yml"

	overlaySuffix = ".json"
)

// Layout names the remote paths of one dataset.
type Layout struct {
	// Root is the absolute, cleaned remote path of the dataset.
	Root string
}

// New returns the layout of the dataset rooted at root.
func New(root string) Layout {
	return Layout{Root: path.Clean(root)}
}

func (l Layout) join(elem ...string) string {
	return path.Join(append([]string{l.Root}, elem...)...)
}

// DtoolDir is the metadata container.
func (l Layout) DtoolDir() string { return l.join(dtoolDirName) }

// DataDir is the flat item container.
func (l Layout) DataDir() string { return l.join(dataDirName) }

// OverlaysDir is the overlay container.
func (l Layout) OverlaysDir() string { return l.join(dtoolDirName, overlaysDirName) }

// FragmentsDir is the pre-freeze metadata scratch area.
func (l Layout) FragmentsDir() string { return l.join(dtoolDirName, fragmentsDirName) }

// AdminMetadataPath is the object whose presence makes the root a dataset.
func (l Layout) AdminMetadataPath() string { return l.join(dtoolDirName, adminMetadataName) }

// ManifestPath is the frozen manifest object.
func (l Layout) ManifestPath() string { return l.join(dtoolDirName, manifestName) }

// StructurePath is the self-describing layout object.
func (l Layout) StructurePath() string { return l.join(dtoolDirName, structureName) }

// DtoolReadmePath is the boilerplate README inside the metadata container.
func (l Layout) DtoolReadmePath() string { return l.join(dtoolDirName, dtoolReadmeName) }

// ReadmePath is the user-supplied description.
func (l Layout) ReadmePath() string { return l.join(readmeName) }

// ErrInvalidOverlayName is returned by CheckOverlayName.
var ErrInvalidOverlayName = errors.New("invalid overlay name")

// CheckOverlayName reports whether name can be used as an overlay name: it
// must be a single path component, so its object stays inside the overlays
// collection.
func CheckOverlayName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidOverlayName, name)
	}
	return nil
}

// OverlayPath is the object holding the overlay called name. name must pass
// CheckOverlayName.
func (l Layout) OverlayPath(name string) string {
	return l.join(dtoolDirName, overlaysDirName, name+overlaySuffix)
}

// ItemPath is the object holding the item with the given identifier.
func (l Layout) ItemPath(identifier string) string {
	return l.join(dataDirName, identifier)
}

// EssentialDirectories are the collections created under a fresh root, in
// creation order (parents first).
func (l Layout) EssentialDirectories() []string {
	return []string{l.DtoolDir(), l.DataDir(), l.OverlaysDir()}
}

// OverlayName returns the overlay name stored in the object called
// objectName, and false if the object is not an overlay.
func OverlayName(objectName string) (string, bool) {
	name, ok := strings.CutSuffix(objectName, overlaySuffix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// Structure returns the map written to structure.json. Values are path
// components relative to the root.
func Structure() map[string][]string {
	return map[string][]string{
		"data_directory":               {dataDirName},
		"dataset_readme_relpath":       {readmeName},
		"dtool_directory":              {dtoolDirName},
		"admin_metadata_relpath":       {dtoolDirName, adminMetadataName},
		"structure_metadata_relpath":   {dtoolDirName, structureName},
		"dtool_readme_relpath":         {dtoolDirName, dtoolReadmeName},
		"manifest_relpath":             {dtoolDirName, manifestName},
		"overlays_directory":           {dtoolDirName, overlaysDirName},
		"metadata_fragments_directory": {dtoolDirName, fragmentsDirName},
	}
}

// DtoolReadme is the content of .dtool/README.txt.
const DtoolReadme = `README
======

This is a dtool dataset stored in iRODS.

Content provided during the dataset creation process
----------------------------------------------------

Dataset descriptive metadata: README.yml

Dataset items. Each item is stored as a data object in the "data" collection,
named by the SHA-1 hash of its relative path (the "identifier"). The relative
path is kept as the "handle" metadata key of the data object.

Automatically generated files and collections
---------------------------------------------

This file: .dtool/README.txt

Administrative metadata describing the dataset: .dtool/dtool

Structural metadata describing this layout: .dtool/structure.json

Manifest describing the items: .dtool/manifest.json

Collection of overlays: .dtool/overlays
`

// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/luatt/luatt/lib/wire"
)

// ResolveArchive reads a .luaz or .zip archive: its Loader.cmd and every
// source it lists. Member paths in Loader.cmd are relative to the
// Loader.cmd's directory inside the archive.
func ResolveArchive(archivePath string) (Plan, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening archive %s: %w", ErrManifest, archivePath, err)
	}
	defer reader.Close()

	plan, err := resolveArchive(&reader.Reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", archivePath, err)
	}
	return plan, nil
}

func resolveArchive(archive *zip.Reader) (Plan, error) {
	loader, err := findLoader(archive.File)
	if err != nil {
		return nil, err
	}
	contents, err := readMember(loader)
	if err != nil {
		return nil, err
	}
	entries, err := ParseLoaderCommand(strings.NewReader(contents))
	if err != nil {
		return nil, err
	}

	members := make(map[string]*zip.File, len(archive.File))
	for _, file := range archive.File {
		members[file.Name] = file
	}

	directory := path.Dir(loader.Name)
	plan := make(Plan, 0, len(entries))
	for _, entry := range entries {
		name, relative := SplitName(entry)
		memberPath := path.Join(directory, relative)
		member, ok := members[memberPath]
		if !ok {
			return nil, fmt.Errorf("%w: %s lists %s, which is not in the archive", ErrManifest, loader.Name, memberPath)
		}
		source, err := readMember(member)
		if err != nil {
			return nil, err
		}
		plan = append(plan, Step{Kind: StepLoad, Name: name, Source: source, Origin: memberPath})
	}
	return plan, nil
}

// findLoader picks the archive's Loader.cmd: the one at the root if
// present, otherwise the only one exactly one directory down.
func findLoader(files []*zip.File) (*zip.File, error) {
	var nested []*zip.File
	for _, file := range files {
		if file.Name == LoaderFile {
			return file, nil
		}
		directory, base := path.Split(file.Name)
		if base != LoaderFile || strings.Contains(strings.TrimSuffix(directory, "/"), "/") {
			continue
		}
		nested = append(nested, file)
	}
	switch len(nested) {
	case 0:
		return nil, fmt.Errorf("%w: %s not found in archive", ErrManifest, LoaderFile)
	case 1:
		return nested[0], nil
	default:
		return nil, fmt.Errorf("%w: archive has multiple %s files (%s, %s)", ErrManifest, LoaderFile, nested[0].Name, nested[1].Name)
	}
}

// readMember reads one archive member, bounded by the largest field the
// wire format accepts.
func readMember(file *zip.File) (string, error) {
	reader, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %w", ErrManifest, file.Name, err)
	}
	defer reader.Close()
	return readLimited(reader, file.Name, wire.MaxFieldLength)
}

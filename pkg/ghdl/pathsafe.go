// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"path"
	"regexp"
	"strings"
)

// driveLetter matches a Windows drive-prefix component like "C:" occurring
// anywhere in a forge path. Forge paths are attacker-influenced strings;
// this guards the same traversal class on a Windows host where a bare
// "C:\x" component could otherwise be joined into an absolute path.
var driveLetter = regexp.MustCompile(`^[A-Za-z]:$`)

// SafeRelPath computes a safe local relative path for item under
// basePath, per §4.2. It strips basePath as a prefix of item.Path
// (falling back to the full path if the strip fails), replaces an empty
// result with item.Name, then rebuilds the path component-by-component:
// only normal components survive, "." is elided, and ".."/"/"/a drive
// letter anywhere triggers KindUnsafePath.
func SafeRelPath(basePath string, item ContentItem) (string, error) {
	if strings.HasPrefix(strings.ReplaceAll(item.Path, "\\", "/"), "/") {
		return "", newErr(KindUnsafePath, "path %q is absolute", item.Path)
	}
	forgePath := normalizeForgePath(item.Path)
	base := normalizeForgePath(basePath)

	rel := forgePath
	if base != "" {
		if strings.HasPrefix(forgePath, base+"/") {
			rel = strings.TrimPrefix(forgePath, base+"/")
		} else if forgePath == base {
			rel = ""
		}
		// else: strip failed, fall back to the whole forge path
	}

	if rel == "" {
		rel = item.Name
	}

	segs := strings.Split(rel, "/")
	clean := make([]string, 0, len(segs))
	for _, s := range segs {
		switch {
		case s == "" || s == ".":
			continue
		case s == "..":
			return "", newErr(KindUnsafePath, "path %q contains a parent-directory component", item.Path)
		case driveLetter.MatchString(s):
			return "", newErr(KindUnsafePath, "path %q contains a drive-letter component %q", item.Path, s)
		default:
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return "", newErr(KindUnsafePath, "path %q normalizes to nothing", item.Path)
	}

	result := path.Join(clean...)
	if path.IsAbs(result) || strings.HasPrefix(result, "../") || result == ".." {
		return "", newErr(KindUnsafePath, "path %q escapes the output root", item.Path)
	}
	return result, nil
}

// ResolveUnderRoot joins rel onto root and verifies the result is a
// lexical descendant of root, enforcing invariant 1 of §3. This is the
// final gate before any DownloadTask/FileCopyTask is allowed to write.
func ResolveUnderRoot(root, rel string) (string, error) {
	target := path.Join(root, rel)
	cleanRoot := path.Clean(root)
	if cleanRoot == "." {
		// path.Join drops the "./" prefix, so any relative target that
		// does not climb out is a descendant of the current directory.
		if path.IsAbs(target) || target == ".." || strings.HasPrefix(target, "../") {
			return "", newErr(KindUnsafePath, "target %q escapes root %q", target, root)
		}
		return target, nil
	}
	if target != cleanRoot && !strings.HasPrefix(target, cleanRoot+"/") {
		return "", newErr(KindUnsafePath, "target %q escapes root %q", target, root)
	}
	return target, nil
}

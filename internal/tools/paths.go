package tools

import (
	"strings"

	"github.com/gelarm/gims-automation-mcp-server/internal/gims"
)

// BuildFolderPaths annotates every folder with its full "/a/b" path and
// prepends a synthetic root entry. Parent links that point outside the list
// end the walk; cycles are cut at the first repeated folder.
func BuildFolderPaths(folders []gims.Object) []gims.Object {
	byID := make(map[int]gims.Object, len(folders))
	for _, f := range folders {
		if id, ok := intField(f, "id"); ok {
			byID[id] = f
		}
	}

	out := make([]gims.Object, 0, len(folders)+1)
	out = append(out, gims.Object{
		"id":               nil,
		"name":             "/",
		"path":             "/",
		"parent_folder_id": nil,
		"is_root":          true,
		"note":             "Root folder. Items with folder_id=null are placed here.",
	})

	for _, f := range folders {
		parts := []string{nameOf(f)}
		seen := map[int]bool{}
		if id, ok := intField(f, "id"); ok {
			seen[id] = true
		}
		parentID, ok := intField(f, "parent_folder_id")
		for ok && !seen[parentID] {
			parent, found := byID[parentID]
			if !found {
				break
			}
			seen[parentID] = true
			parts = append([]string{nameOf(parent)}, parts...)
			parentID, ok = intField(parent, "parent_folder_id")
		}

		c := make(gims.Object, len(f)+1)
		for k, v := range f {
			c[k] = v
		}
		c["path"] = "/" + strings.Join(parts, "/")
		out = append(out, c)
	}
	return out
}

// BuildItemPaths sets "path" on every item from the folder referenced by
// folderField, or "/name" for items outside any known folder.
func BuildItemPaths(items, folders []gims.Object, folderField string) []gims.Object {
	paths := make(map[int]string, len(folders))
	for _, f := range folders {
		if id, ok := intField(f, "id"); ok {
			p, _ := f["path"].(string)
			if p == "" {
				p = "/"
			}
			paths[id] = p
		}
	}

	out := make([]gims.Object, 0, len(items))
	for _, it := range items {
		c := make(gims.Object, len(it)+1)
		for k, v := range it {
			c[k] = v
		}
		c["path"] = "/" + nameOf(it)
		if fid, ok := intField(it, folderField); ok {
			if p, found := paths[fid]; found {
				c["path"] = p + "/" + nameOf(it)
			}
		}
		out = append(out, c)
	}
	return out
}

func nameOf(obj gims.Object) string {
	s, _ := obj["name"].(string)
	return s
}

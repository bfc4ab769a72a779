// Package screenmap walks the open-display references between screens and
// records them as a tree that can be serialised to JSON.
package screenmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
)

// FileName is the name of the serialised map inside the destination directory.
const FileName = "json_map.json"

// Node is one screen in the reference tree.
type Node struct {
	File      string
	Exists    bool
	Duplicate bool
	Children  []*Node
	Macros    map[string]string
	Error     string
}

func newNode(file string) *Node {
	return &Node{File: file, Exists: true}
}

type nodeJSON struct {
	File      string            `json:"file"`
	Exists    *bool             `json:"exists,omitempty"`
	Duplicate bool              `json:"duplicate,omitempty"`
	Children  []*Node           `json:"children,omitempty"`
	Macros    map[string]string `json:"macros,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// MarshalJSON writes only the fields that differ from their defaults.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{
		File:      n.File,
		Duplicate: n.Duplicate,
		Children:  n.Children,
		Macros:    n.Macros,
		Error:     n.Error,
	}
	if !n.Exists {
		exists := false
		out.Exists = &exists
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the defaults omitted by MarshalJSON.
func (n *Node) UnmarshalJSON(data []byte) error {
	var in nodeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*n = Node{
		File:      in.File,
		Exists:    in.Exists == nil || *in.Exists,
		Duplicate: in.Duplicate,
		Children:  in.Children,
		Macros:    in.Macros,
		Error:     in.Error,
	}
	return nil
}

// Build walks the references reachable from root. Referenced files are
// resolved relative to destRoot. A screen already seen in this walk is
// recorded as a duplicate leaf, so cyclic references terminate.
func Build(root, destRoot string) *Node {
	w := walker{destRoot: destRoot, visited: make(map[string]struct{})}
	return w.visit(root)
}

type walker struct {
	destRoot string
	visited  map[string]struct{}
}

func (w *walker) visit(path string) *Node {
	node := newNode(path)

	key, err := filepath.Abs(path)
	if err != nil {
		key = filepath.Clean(path)
	}
	if _, seen := w.visited[key]; seen {
		node.Duplicate = true
		return node
	}
	w.visited[key] = struct{}{}

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		node.Error = fmt.Sprintf("XML parse error: %v", err)
		return node
	}
	root := doc.Root()
	if root == nil {
		node.Error = "XML parse error: empty document"
		return node
	}

	for _, widget := range root.FindElements(".//widget") {
		switch widget.SelectAttrValue("type", "") {
		case "symbol", "action_button":
		default:
			continue
		}
		action := OpenDisplayAction(widget)
		if action == nil {
			continue
		}
		ref := ""
		if fileEl := action.SelectElement("file"); fileEl != nil {
			ref = strings.TrimSpace(fileEl.Text())
		}
		if filepath.Ext(ref) != ".bob" {
			continue
		}

		target := filepath.Join(w.destRoot, filepath.FromSlash(ref))
		var child *Node
		if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
			child = w.visit(target)
		} else {
			child = &Node{File: ref, Exists: false}
		}
		child.Macros = actionMacros(action)
		node.Children = append(node.Children, child)
	}
	return node
}

// OpenDisplayAction returns the first open_display action of a widget.
func OpenDisplayAction(widget *etree.Element) *etree.Element {
	actions := widget.SelectElement("actions")
	if actions == nil {
		return nil
	}
	for _, action := range actions.SelectElements("action") {
		if action.SelectAttrValue("type", "") == "open_display" {
			return action
		}
	}
	return nil
}

func actionMacros(action *etree.Element) map[string]string {
	block := action.SelectElement("macros")
	if block == nil {
		return nil
	}
	var out map[string]string
	for _, macro := range block.ChildElements() {
		value := macro.Text()
		if value == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[macro.Tag] = value
	}
	return out
}

// Write builds the map for root and stores it as json_map.json in destDir.
func Write(root, destDir string) (string, error) {
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("cannot generate json map for %s, has it been generated?: %w", root, err)
		}
		return "", fmt.Errorf("stat %s: %w", root, err)
	}
	data, err := json.MarshalIndent(Build(root, destDir), "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode json map: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", destDir, err)
	}
	path := filepath.Join(destDir, FileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write json map: %w", err)
	}
	return path, nil
}

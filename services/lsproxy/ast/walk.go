// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/workspace"
)

// maxNameDepth bounds the descent through member and wrapper nodes when
// looking for the final name of an expression.
const maxNameDepth = 16

// walker collects definitions, identifier tokens and reference
// candidates in one pre-order pass.
type walker struct {
	g       *grammar
	content []byte
	src     *workspace.Source
	file    *File

	defNames map[uint32]int  // name start byte -> definition index
	seenRefs map[uint32]bool // reference start byte
}

func newWalker(g *grammar, content []byte, file *File) *walker {
	return &walker{
		g:        g,
		content:  content,
		src:      workspace.NewSource(content),
		file:     file,
		defNames: make(map[uint32]int),
		seenRefs: make(map[uint32]bool),
	}
}

// walk visits n. parent indexes the enclosing definition, -1 at file
// scope. inClass is set directly inside a class-like body. inType is set
// inside a type annotation.
func (w *walker) walk(n *sitter.Node, parent int, inClass, inType bool) {
	if n == nil {
		return
	}
	typ := n.Type()

	childParent := parent
	isDef := false
	if _, ok := w.g.definitions[typ]; ok {
		if !w.g.variables[typ] || parent < 0 {
			if idx := w.define(n, parent, inClass); idx >= 0 {
				childParent = idx
				isDef = true
			}
		}
	}

	w.collectReferences(n, typ, inType)

	if w.g.identifiers[typ] {
		w.file.idents = append(w.file.idents, w.token(n, ""))
	}

	childInClass := w.g.classBodies[typ] || (inClass && !isDef)
	childInType := inType || w.g.typeContexts[typ]
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), childParent, childInClass, childInType)
	}
}

// define records the definitions n introduces and returns the index of
// the first, or -1 when n defines nothing.
func (w *walker) define(n *sitter.Node, parent int, inClass bool) int {
	kind := w.kindOf(n, inClass)
	if kind == "" {
		return -1
	}
	names := w.definitionNames(n)
	if len(names) == 0 {
		return -1
	}

	rng := w.rangeOf(w.rangeNode(n))
	first := -1
	for _, name := range names {
		idx := len(w.file.defs)
		w.file.defs = append(w.file.defs, definition{
			name:      name.Content(w.content),
			kind:      kind,
			nameRange: w.rangeOf(name),
			rng:       rng,
			topLevel:  parent < 0 && !inClass,
		})
		w.defNames[name.StartByte()] = idx
		if first < 0 {
			first = idx
		}
	}
	return first
}

// kindOf returns the symbol kind of definition node n, or "" when n
// turns out not to define anything.
func (w *walker) kindOf(n *sitter.Node, inClass bool) string {
	kind := w.g.definitions[n.Type()]

	switch n.Type() {
	case "type_spec":
		switch t := n.ChildByFieldName("type"); {
		case t == nil:
			return KindType
		case t.Type() == "struct_type":
			return KindStruct
		case t.Type() == "interface_type":
			return KindInterface
		default:
			return KindType
		}
	case "expression_statement":
		if a := n.NamedChild(0); a == nil || a.Type() != "assignment" {
			return ""
		}
		return KindVariable
	case "variable_declarator":
		if v := n.ChildByFieldName("value"); v != nil {
			switch v.Type() {
			case "arrow_function", "function", "function_expression", "generator_function":
				return KindFunction
			}
		}
		if p := n.Parent(); p != nil && p.ChildCount() > 0 && p.Child(0).Type() == "const" {
			return KindConstant
		}
		return KindVariable
	case "declaration":
		return KindVariable
	case "struct_specifier", "union_specifier", "enum_specifier", "class_specifier":
		// Only specifiers with a body define a type; "struct point p" uses one.
		if n.ChildByFieldName("body") == nil {
			return ""
		}
	}

	if kind == KindFunction && inClass {
		return KindMethod
	}
	return kind
}

// definitionNames returns the name tokens n defines.
func (w *walker) definitionNames(n *sitter.Node) []*sitter.Node {
	switch n.Type() {
	case "expression_statement":
		left := n.NamedChild(0).ChildByFieldName("left")
		if left == nil {
			return nil
		}
		if w.g.identifiers[left.Type()] {
			return []*sitter.Node{left}
		}
		var names []*sitter.Node
		switch left.Type() {
		case "pattern_list", "tuple_pattern", "list_pattern":
			for i := 0; i < int(left.NamedChildCount()); i++ {
				if c := left.NamedChild(i); w.g.identifiers[c.Type()] {
					names = append(names, c)
				}
			}
		}
		return names

	case "var_spec", "const_spec":
		return w.fieldChildren(n, "name")

	case "declaration":
		var names []*sitter.Node
		for _, d := range w.fieldChildren(n, "declarator") {
			if name := declaratorName(d, false); name != nil {
				names = append(names, name)
			}
		}
		return names

	case "type_definition":
		var names []*sitter.Node
		for _, d := range w.fieldChildren(n, "declarator") {
			if name := declaratorName(d, false); name != nil {
				names = append(names, name)
			}
		}
		return names
	}

	if name := n.ChildByFieldName("name"); name != nil {
		return []*sitter.Node{name}
	}
	if d := n.ChildByFieldName("declarator"); d != nil {
		if name := declaratorName(d, true); name != nil {
			return []*sitter.Node{name}
		}
	}
	return nil
}

func (w *walker) fieldChildren(n *sitter.Node, field string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == field {
			out = append(out, n.Child(i))
		}
	}
	return out
}

// declaratorName unwraps a C/C++ declarator to its name. Function
// declarators are followed only when allowFunction is set, so that
// prototypes are not mistaken for variables.
func declaratorName(d *sitter.Node, allowFunction bool) *sitter.Node {
	for depth := 0; d != nil && depth < maxNameDepth; depth++ {
		switch d.Type() {
		case "identifier", "field_identifier", "type_identifier", "destructor_name", "operator_name":
			return d
		case "qualified_identifier":
			d = d.ChildByFieldName("name")
		case "function_declarator":
			if !allowFunction {
				return nil
			}
			d = d.ChildByFieldName("declarator")
		case "pointer_declarator", "array_declarator", "parenthesized_declarator",
			"init_declarator", "attributed_declarator", "reference_declarator":
			next := d.ChildByFieldName("declarator")
			if next == nil {
				next = d.NamedChild(0)
			}
			d = next
		default:
			return nil
		}
	}
	return nil
}

// rangeNode returns the node whose extent is the definition's range.
func (w *walker) rangeNode(n *sitter.Node) *sitter.Node {
	p := n.Parent()
	if p == nil {
		return n
	}
	if w.g.rangeParents[p.Type()] {
		return p
	}
	if w.g.singleWrappers[p.Type()] && p.NamedChildCount() == 1 {
		return p
	}
	return n
}

// collectReferences records the reference candidates rooted at n.
func (w *walker) collectReferences(n *sitter.Node, typ string, inType bool) {
	if field, ok := w.g.calls[typ]; ok {
		w.addRef(w.lastName(n.ChildByFieldName(field)), RefFunctionCall)
	}
	if field, ok := w.g.constructors[typ]; ok {
		w.addRef(w.lastName(n.ChildByFieldName(field)), RefConstructor)
	}
	if w.g.decorators[typ] {
		target := n.ChildByFieldName("name")
		if target == nil {
			target = n.NamedChild(0)
		}
		w.addRef(w.lastName(target), RefDecorator)
	}
	if field, ok := w.g.receivers[typ]; ok {
		if obj := n.ChildByFieldName(field); obj != nil && w.g.identifiers[obj.Type()] {
			w.addRef(obj, RefIdentifier)
		}
	}
	if w.g.typeRefs[typ] || (inType && w.g.identifiers[typ]) {
		w.addRef(n, RefTypeAnnotation)
	}
}

// lastName descends through member access, wrappers and calls to the
// token that names the referenced entity, e.g. "b" in "a.b".
func (w *walker) lastName(n *sitter.Node) *sitter.Node {
	for depth := 0; n != nil && depth < maxNameDepth; depth++ {
		typ := n.Type()
		if w.g.identifiers[typ] {
			return n
		}
		if field, ok := w.g.members[typ]; ok {
			switch field {
			case firstNamed:
				n = n.NamedChild(0)
			case lastNamed:
				if c := int(n.NamedChildCount()); c > 0 {
					n = n.NamedChild(c - 1)
				} else {
					n = nil
				}
			default:
				n = n.ChildByFieldName(field)
			}
			continue
		}
		if field, ok := w.g.calls[typ]; ok {
			n = n.ChildByFieldName(field)
			continue
		}
		return nil
	}
	return nil
}

// addRef records tok once; the first kind seen wins, and parents are
// visited before their children.
func (w *walker) addRef(tok *sitter.Node, kind string) {
	if tok == nil || !w.g.identifiers[tok.Type()] {
		return
	}
	start := tok.StartByte()
	if w.seenRefs[start] {
		return
	}
	if _, isDef := w.defNames[start]; isDef {
		return
	}
	w.seenRefs[start] = true
	w.file.refs = append(w.file.refs, w.token(tok, kind))
}

func (w *walker) token(n *sitter.Node, kind string) token {
	return token{
		name:  n.Content(w.content),
		kind:  kind,
		rng:   w.rangeOf(n),
		start: n.StartByte(),
	}
}

func (w *walker) rangeOf(n *sitter.Node) model.Range {
	return model.Range{
		Start: w.src.PositionAt(int(n.StartByte())),
		End:   w.src.PositionAt(int(n.EndByte())),
	}
}

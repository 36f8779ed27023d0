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
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Symbol kinds.
const (
	KindFunction  = "function"
	KindMethod    = "method"
	KindClass     = "class"
	KindInterface = "interface"
	KindStruct    = "struct"
	KindEnum      = "enum"
	KindType      = "type"
	KindTrait     = "trait"
	KindModule    = "module"
	KindVariable  = "variable"
	KindConstant  = "constant"
)

// Reference kinds.
const (
	RefFunctionCall   = "function-call"
	RefConstructor    = "constructor"
	RefDecorator      = "decorator"
	RefTypeAnnotation = "type-annotation"
	RefIdentifier     = "identifier"
)

// kindDecide marks definition nodes whose kind depends on their content.
const kindDecide = ""

// Pseudo field names for members entries.
const (
	firstNamed = ""
	lastNamed  = "$last"
)

// grammar is the node-type table for one tree-sitter language.
type grammar struct {
	name     string
	language *sitter.Language

	// definitions maps definition node types to symbol kinds.
	definitions map[string]string

	// variables are definition nodes only honoured at file scope.
	variables map[string]bool

	// classBodies are node types whose function children are methods.
	classBodies map[string]bool

	// rangeParents extend a definition's range to a wrapping node, e.g.
	// a Python decorated_definition.
	rangeParents map[string]bool

	// identifiers are the leaf token types treated as names.
	identifiers map[string]bool

	// members maps access and wrapper nodes to the field holding the
	// final name, or to firstNamed or lastNamed.
	members map[string]string

	// receivers maps access nodes to the field holding the receiver.
	receivers map[string]string

	// calls maps call nodes to the callee field.
	calls map[string]string

	// constructors maps construction nodes to the type field.
	constructors map[string]string

	// decorators are decorator and annotation node types.
	decorators map[string]bool

	// typeRefs are token types that always name a type.
	typeRefs map[string]bool

	// typeContexts are nodes whose identifiers name types.
	typeContexts map[string]bool

	// singleWrappers lend their range to a sole definition child, e.g.
	// Go's "type A struct{}" or JavaScript's "const a = 1".
	singleWrappers map[string]bool
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func goGrammar() *grammar {
	return &grammar{
		name:     "go",
		language: golang.GetLanguage(),
		definitions: map[string]string{
			"function_declaration": KindFunction,
			"method_declaration":   KindMethod,
			"type_spec":            kindDecide,
			"type_alias":           KindType,
			"var_spec":             KindVariable,
			"const_spec":           KindConstant,
		},
		variables:   set("var_spec", "const_spec"),
		identifiers: set("identifier", "field_identifier", "type_identifier", "package_identifier"),
		members: map[string]string{
			"selector_expression": "field",
			"qualified_type":      "name",
			"generic_type":        "type",
			"index_expression":    "operand",
		},
		receivers:      map[string]string{"selector_expression": "operand"},
		calls:          map[string]string{"call_expression": "function"},
		constructors:   map[string]string{"composite_literal": "type"},
		typeRefs:       set("type_identifier"),
		singleWrappers: set("type_declaration", "var_declaration", "const_declaration"),
	}
}

func pythonGrammar() *grammar {
	return &grammar{
		name:     "python",
		language: python.GetLanguage(),
		definitions: map[string]string{
			"function_definition":       KindFunction,
			"async_function_definition": KindFunction,
			"class_definition":          KindClass,
			"expression_statement":      kindDecide,
		},
		variables:    set("expression_statement"),
		classBodies:  set("class_definition"),
		rangeParents: set("decorated_definition"),
		identifiers:  set("identifier"),
		members:      map[string]string{"attribute": "attribute"},
		receivers:    map[string]string{"attribute": "object"},
		calls:        map[string]string{"call": "function"},
		decorators:   set("decorator"),
		typeContexts: set("type"),
	}
}

func typescriptGrammar(name string, lang *sitter.Language) *grammar {
	g := javascriptGrammar()
	g.name = name
	g.language = lang
	g.definitions["interface_declaration"] = KindInterface
	g.definitions["type_alias_declaration"] = KindType
	g.definitions["enum_declaration"] = KindEnum
	g.definitions["abstract_class_declaration"] = KindClass
	g.definitions["module"] = KindModule
	g.definitions["internal_module"] = KindModule
	g.classBodies["abstract_class_declaration"] = true
	g.identifiers["type_identifier"] = true
	g.members["generic_type"] = "name"
	g.members["nested_type_identifier"] = "name"
	g.typeRefs = set("type_identifier")
	return g
}

func javascriptGrammar() *grammar {
	return &grammar{
		name:     "javascript",
		language: javascript.GetLanguage(),
		definitions: map[string]string{
			"function_declaration":           KindFunction,
			"generator_function_declaration": KindFunction,
			"class_declaration":              KindClass,
			"method_definition":              KindMethod,
			"variable_declarator":            kindDecide,
		},
		variables:      set("variable_declarator"),
		classBodies:    set("class_declaration"),
		identifiers:    set("identifier", "property_identifier", "shorthand_property_identifier", "private_property_identifier"),
		members:        map[string]string{"member_expression": "property"},
		receivers:      map[string]string{"member_expression": "object"},
		calls:          map[string]string{"call_expression": "function"},
		constructors:   map[string]string{"new_expression": "constructor"},
		decorators:     set("decorator"),
		singleWrappers: set("lexical_declaration", "variable_declaration"),
	}
}

func rustGrammar() *grammar {
	return &grammar{
		name:     "rust",
		language: rust.GetLanguage(),
		definitions: map[string]string{
			"function_item":    KindFunction,
			"struct_item":      KindStruct,
			"enum_item":        KindEnum,
			"union_item":       KindStruct,
			"trait_item":       KindTrait,
			"mod_item":         KindModule,
			"type_item":        KindType,
			"const_item":       KindConstant,
			"static_item":      KindVariable,
			"macro_definition": KindFunction,
		},
		variables:   set("const_item", "static_item"),
		classBodies: set("impl_item", "trait_item"),
		identifiers: set("identifier", "field_identifier", "type_identifier"),
		members: map[string]string{
			"field_expression":       "field",
			"scoped_identifier":      "name",
			"scoped_type_identifier": "name",
			"generic_function":       "function",
			"generic_type":           "type",
			"attribute":              firstNamed,
		},
		receivers: map[string]string{"field_expression": "value"},
		calls: map[string]string{
			"call_expression":  "function",
			"macro_invocation": "macro",
		},
		constructors: map[string]string{"struct_expression": "name"},
		decorators:   set("attribute_item"),
		typeRefs:     set("type_identifier"),
	}
}

func javaGrammar() *grammar {
	return &grammar{
		name:     "java",
		language: java.GetLanguage(),
		definitions: map[string]string{
			"class_declaration":           KindClass,
			"interface_declaration":       KindInterface,
			"enum_declaration":            KindEnum,
			"record_declaration":          KindClass,
			"annotation_type_declaration": KindInterface,
			"method_declaration":          KindMethod,
			"constructor_declaration":     KindMethod,
		},
		identifiers: set("identifier", "type_identifier"),
		members: map[string]string{
			"field_access":           "field",
			"scoped_identifier":      "name",
			"generic_type":           firstNamed,
			"scoped_type_identifier": lastNamed,
		},
		receivers: map[string]string{
			"field_access":      "object",
			"method_invocation": "object",
		},
		calls:        map[string]string{"method_invocation": "name"},
		constructors: map[string]string{"object_creation_expression": "type"},
		decorators:   set("annotation", "marker_annotation"),
		typeRefs:     set("type_identifier"),
	}
}

func cGrammar() *grammar {
	return &grammar{
		name:     "c",
		language: c.GetLanguage(),
		definitions: map[string]string{
			"function_definition": KindFunction,
			"struct_specifier":    KindStruct,
			"union_specifier":     KindStruct,
			"enum_specifier":      KindEnum,
			"type_definition":     KindType,
			"declaration":         kindDecide,
		},
		variables:   set("declaration"),
		identifiers: set("identifier", "field_identifier", "type_identifier"),
		members:     map[string]string{"field_expression": "field"},
		receivers:   map[string]string{"field_expression": "argument"},
		calls:       map[string]string{"call_expression": "function"},
		typeRefs:    set("type_identifier"),
	}
}

func cppGrammar() *grammar {
	g := cGrammar()
	g.name = "cpp"
	g.language = cpp.GetLanguage()
	g.definitions["class_specifier"] = KindClass
	g.definitions["namespace_definition"] = KindModule
	g.classBodies = set("class_specifier", "struct_specifier")
	g.identifiers["namespace_identifier"] = true
	g.members["qualified_identifier"] = "name"
	g.members["template_function"] = "name"
	g.members["template_type"] = "name"
	g.constructors = map[string]string{"new_expression": "type"}
	return g
}

// grammarKey picks the grammar for a language and file extension.
func grammarKey(language, ext string) string {
	if language == "typescript" && ext == ".tsx" {
		return "tsx"
	}
	return language
}

func defaultGrammars() map[string]*grammar {
	return map[string]*grammar{
		"go":         goGrammar(),
		"python":     pythonGrammar(),
		"typescript": typescriptGrammar("typescript", typescript.GetLanguage()),
		"tsx":        typescriptGrammar("tsx", tsx.GetLanguage()),
		"javascript": javascriptGrammar(),
		"rust":       rustGrammar(),
		"java":       javaGrammar(),
		"c":          cGrammar(),
		"cpp":        cppGrammar(),
	}
}

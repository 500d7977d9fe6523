package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultDocPath = "api/openapi.yaml"

type openAPIDoc struct {
	Paths      map[string]map[string]yaml.Node `yaml:"paths"`
	Components struct {
		Schemas    map[string]schema    `yaml:"schemas"`
		Responses  map[string]yaml.Node `yaml:"responses"`
		Parameters map[string]yaml.Node `yaml:"parameters"`
	} `yaml:"components"`
	raw yaml.Node
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Enum       []string          `yaml:"enum"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

type operation struct {
	Method string
	Path   string
}

// Routes registered by services/api/internal/server.
var requiredOperations = []operation{
	{"get", "/healthz"},
	{"post", "/auth/signup"},
	{"post", "/auth/login"},
	{"post", "/auth/logout"},
	{"post", "/api/chat/{userId}"},
	{"get", "/api/chat/{userId}"},
	{"get", "/api/chat/{userId}/{notebookId}"},
	{"post", "/api/process-document"},
}

// Codes written by the server error helpers.
var errorCodes = []string{
	"BAD_REQUEST",
	"UNAUTHORIZED",
	"FORBIDDEN",
	"NOT_FOUND",
	"CONFLICT",
	"UPLOAD_FAILED",
	"BAD_GATEWAY",
	"INTERNAL",
	"RATE_LIMITED",
	"METHOD_NOT_ALLOWED",
}

func main() {
	if len(os.Args) > 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [openapi.yaml]\n", os.Args[0])
		os.Exit(2)
	}
	path := defaultDocPath
	if len(os.Args) == 2 {
		path = os.Args[1]
	}

	doc, err := loadDoc(path)
	if err != nil {
		exitErr(err)
	}
	if errs := checkDoc(doc); len(errs) > 0 {
		exitErr(errors.Join(errs...))
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func loadDoc(path string) (openAPIDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return openAPIDoc{}, fmt.Errorf("read %s: %w", path, err)
	}
	return parseDoc(raw)
}

func parseDoc(raw []byte) (openAPIDoc, error) {
	var doc openAPIDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse: %w", err)
	}
	if err := yaml.Unmarshal(raw, &doc.raw); err != nil {
		return doc, fmt.Errorf("parse: %w", err)
	}
	return doc, nil
}

func checkDoc(doc openAPIDoc) []error {
	var errs []error
	errs = append(errs, checkOperations(doc)...)
	errResp, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		errs = append(errs, err)
	} else if err := validateErrorResponse(errResp); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, checkRefs(doc)...)
	return errs
}

func checkOperations(doc openAPIDoc) []error {
	var errs []error
	for _, op := range requiredOperations {
		item, ok := doc.Paths[op.Path]
		if !ok {
			errs = append(errs, fmt.Errorf("path %s missing", op.Path))
			continue
		}
		if _, ok := item[op.Method]; !ok {
			errs = append(errs, fmt.Errorf("operation %s %s missing", strings.ToUpper(op.Method), op.Path))
		}
	}
	return errs
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	enum := makeSet(s.Properties["code"].Enum)
	var missing []string
	for _, code := range errorCodes {
		if !enum[code] {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("ErrorResponse.code enum missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// checkRefs verifies that every local $ref points at a declared component.
func checkRefs(doc openAPIDoc) []error {
	var errs []error
	seen := map[string]bool{}
	walkRefs(&doc.raw, func(ref string) {
		if seen[ref] {
			return
		}
		seen[ref] = true
		if !resolves(doc, ref) {
			errs = append(errs, fmt.Errorf("unresolved $ref %q", ref))
		}
	})
	return errs
}

func walkRefs(n *yaml.Node, visit func(string)) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == "$ref" && n.Content[i+1].Kind == yaml.ScalarNode {
				visit(n.Content[i+1].Value)
			}
		}
	}
	for _, child := range n.Content {
		walkRefs(child, visit)
	}
}

func resolves(doc openAPIDoc, ref string) bool {
	parts := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	if len(parts) != 3 || parts[0] != "components" {
		return false
	}
	switch parts[1] {
	case "schemas":
		_, ok := doc.Components.Schemas[parts[2]]
		return ok
	case "responses":
		_, ok := doc.Components.Responses[parts[2]]
		return ok
	case "parameters":
		_, ok := doc.Components.Parameters[parts[2]]
		return ok
	default:
		return false
	}
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

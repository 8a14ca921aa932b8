package strategy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"alphakit/internal/pkg/errs"
)

// SchemaForParams 由声明的参数模式生成 JSON Schema 文档，
// 供外部提交的参数在进入 Build 之前做结构校验。
func SchemaForParams(specs []ParamSpec) (string, error) {
	properties := make(map[string]any, len(specs))
	for _, p := range specs {
		prop := map[string]any{}
		switch p.Type {
		case "int":
			prop["type"] = "integer"
		case "float":
			prop["type"] = "number"
		case "bool":
			prop["type"] = "boolean"
		case "string":
			prop["type"] = "string"
		default:
			return "", errs.Validationf("参数 %s 类型未知: %q", p.Name, p.Type)
		}
		if p.Min != 0 || p.Max != 0 {
			prop["minimum"] = p.Min
			prop["maximum"] = p.Max
		}
		if len(p.Options) > 0 {
			enum := make([]any, len(p.Options))
			for i, o := range p.Options {
				enum[i] = o
			}
			prop["enum"] = enum
		}
		properties[p.Name] = prop
	}
	doc := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ValidateParamsJSON 用声明模式校验一份 JSON 参数文档。
func ValidateParamsJSON(specs []ParamSpec, rawParams string) error {
	schemaDoc, err := SchemaForParams(specs)
	if err != nil {
		return err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("params.json", strings.NewReader(schemaDoc)); err != nil {
		return err
	}
	schema, err := compiler.Compile("params.json")
	if err != nil {
		return fmt.Errorf("编译参数 schema 失败: %w", err)
	}
	var value any
	if err := json.Unmarshal([]byte(rawParams), &value); err != nil {
		return errs.Validationf("参数不是合法 JSON: %v", err)
	}
	if err := schema.Validate(value); err != nil {
		return errs.Validationf("参数校验失败: %v", err)
	}
	return nil
}

// ParamSpecsFor 返回某个角色变体的声明参数模式，用于 UI 表单生成。
func ParamSpecsFor(role, name string) ([]ParamSpec, error) {
	switch role {
	case "selector":
		sel, err := BuildSelector(name, nil)
		if err != nil {
			return nil, err
		}
		return sel.Params(), nil
	case "entry":
		entry, err := BuildEntry(name, nil)
		if err != nil {
			return nil, err
		}
		return entry.Params(), nil
	case "exit":
		exit, err := BuildExit(name, nil)
		if err != nil {
			return nil, err
		}
		return exit.Params(), nil
	default:
		return nil, errs.Validationf("未知角色: %q", role)
	}
}

// Package corenodes is the core executor's built-in node catalog: the
// node types every Graph Document can use without a host integration
// registering anything of its own.
package corenodes

import (
	"github.com/dagforge/engine/docgraph"
	"github.com/dagforge/engine/taskexec"
)

// Type strings for every built-in node.
const (
	TypeTextInput         = "text-input"
	TypeTextOutput        = "text-output"
	TypeImageInput        = "image-input"
	TypeLinkedInput       = "linked-input"
	TypeCondition         = "condition"
	TypeMerge             = "merge"
	TypeToolExecutor      = "tool-executor"
	TypeComponentPreview  = "component-preview"
	TypeReadFile          = "read-file"
	TypeWriteFile         = "write-file"
	TypeVectorDB          = "vector-db"
	TypeLlamaCppInference = "llamacpp-inference"
	TypeOllamaInference    = "ollama-inference"
	TypeEmbedding         = "embedding"
	TypeUnloadModel       = "unload-model"
)

// RegisterTypes registers every built-in node's port descriptor on r, so
// a Graph Document can validate edits against them without a live
// executor.
func RegisterTypes(r *docgraph.Registry) {
	r.Register(docgraph.NodeTypeDescriptor{
		Type:    TypeTextInput,
		Outputs: []docgraph.PortDefinition{{ID: "text", Label: "Text", DataType: docgraph.TypeString}},
	})
	r.Register(docgraph.NodeTypeDescriptor{
		Type:   TypeTextOutput,
		Inputs: []docgraph.PortDefinition{{ID: "text", Label: "Text", DataType: docgraph.TypeString, Required: true}},
	})
	r.Register(docgraph.NodeTypeDescriptor{
		Type:    TypeImageInput,
		Outputs: []docgraph.PortDefinition{{ID: "image", Label: "Image", DataType: docgraph.TypeImage}},
	})
	r.Register(docgraph.NodeTypeDescriptor{
		Type:    TypeLinkedInput,
		Inputs:  []docgraph.PortDefinition{{ID: "in", Label: "In", DataType: docgraph.TypeAny, Required: true}},
		Outputs: []docgraph.PortDefinition{{ID: "out", Label: "Out", DataType: docgraph.TypeAny}},
	})
	r.Register(docgraph.NodeTypeDescriptor{
		Type: TypeCondition,
		Inputs: []docgraph.PortDefinition{
			{ID: "value", Label: "Value", DataType: docgraph.TypeAny, Required: true},
			{ID: "predicate", Label: "Predicate", DataType: docgraph.TypeString, Required: true},
		},
		Outputs: []docgraph.PortDefinition{
			{ID: "then", Label: "Then", DataType: docgraph.TypeAny},
			{ID: "else", Label: "Else", DataType: docgraph.TypeAny},
		},
	})
	r.Register(docgraph.NodeTypeDescriptor{
		Type:    TypeMerge,
		Inputs:  []docgraph.PortDefinition{{ID: "in", Label: "In", DataType: docgraph.TypeAny, Required: true, Multiple: true}},
		Outputs: []docgraph.PortDefinition{{ID: "out", Label: "Out", DataType: docgraph.TypeJSON}},
	})
	r.Register(docgraph.NodeTypeDescriptor{
		Type: TypeToolExecutor,
		Inputs: []docgraph.PortDefinition{
			{ID: "prompt", Label: "Prompt", DataType: docgraph.TypePrompt, Required: true},
			{ID: "tools", Label: "Tools", DataType: docgraph.TypeTools, Required: true},
		},
		Outputs: []docgraph.PortDefinition{{ID: "result", Label: "Result", DataType: docgraph.TypeString}},
	})
	r.Register(docgraph.NodeTypeDescriptor{
		Type:    TypeComponentPreview,
		Inputs:  []docgraph.PortDefinition{{ID: "component", Label: "Component", DataType: docgraph.TypeComponent, Required: true}},
		Outputs: []docgraph.PortDefinition{{ID: "html", Label: "Sanitized HTML", DataType: docgraph.TypeString}},
	})
	r.Register(docgraph.NodeTypeDescriptor{
		Type:    TypeReadFile,
		Inputs:  []docgraph.PortDefinition{{ID: "path", Label: "Path", DataType: docgraph.TypeString, Required: true}},
		Outputs: []docgraph.PortDefinition{{ID: "contents", Label: "Contents", DataType: docgraph.TypeString}},
	})
	r.Register(docgraph.NodeTypeDescriptor{
		Type: TypeWriteFile,
		Inputs: []docgraph.PortDefinition{
			{ID: "path", Label: "Path", DataType: docgraph.TypeString, Required: true},
			{ID: "contents", Label: "Contents", DataType: docgraph.TypeString, Required: true},
		},
		Outputs: []docgraph.PortDefinition{{ID: "ok", Label: "OK", DataType: docgraph.TypeBoolean}},
	})
	r.Register(docgraph.NodeTypeDescriptor{
		Type:    TypeVectorDB,
		Inputs:  []docgraph.PortDefinition{{ID: "query", Label: "Query", DataType: docgraph.TypeEmbedding, Required: true}},
		Outputs: []docgraph.PortDefinition{{ID: "results", Label: "Results", DataType: docgraph.TypeVectorDB}},
	})
	r.Register(docgraph.NodeTypeDescriptor{
		Type:    TypeLlamaCppInference,
		Inputs:  []docgraph.PortDefinition{{ID: "prompt", Label: "Prompt", DataType: docgraph.TypePrompt, Required: true}},
		Outputs: []docgraph.PortDefinition{{ID: "stream", Label: "Stream", DataType: docgraph.TypeStream}},
	})
	r.Register(docgraph.NodeTypeDescriptor{
		Type:    TypeOllamaInference,
		Inputs:  []docgraph.PortDefinition{{ID: "prompt", Label: "Prompt", DataType: docgraph.TypePrompt, Required: true}},
		Outputs: []docgraph.PortDefinition{{ID: "stream", Label: "Stream", DataType: docgraph.TypeStream}},
	})
	r.Register(docgraph.NodeTypeDescriptor{
		Type:    TypeEmbedding,
		Inputs:  []docgraph.PortDefinition{{ID: "text", Label: "Text", DataType: docgraph.TypeString, Required: true}},
		Outputs: []docgraph.PortDefinition{{ID: "embedding", Label: "Embedding", DataType: docgraph.TypeEmbedding}},
	})
	r.Register(docgraph.NodeTypeDescriptor{
		Type:    TypeUnloadModel,
		Inputs:  []docgraph.PortDefinition{{ID: "trigger", Label: "Trigger", DataType: docgraph.TypeAny}},
		Outputs: []docgraph.PortDefinition{{ID: "ok", Label: "OK", DataType: docgraph.TypeBoolean}},
	})
}

// NewExecutorRegistry builds a taskexec.Registry with every built-in
// node's Executor wired in. The nodes that need a capability (inference,
// embedding, tool-calling) look it up in the taskexec.Context's
// Extensions when invoked, and return an error when it is absent.
func NewExecutorRegistry() *taskexec.Registry {
	r := taskexec.NewRegistry()
	r.Register(TypeTextInput, taskexec.ExecutorFunc(textInputExecute))
	r.Register(TypeTextOutput, taskexec.ExecutorFunc(textOutputExecute))
	r.Register(TypeImageInput, taskexec.ExecutorFunc(imageInputExecute))
	r.Register(TypeLinkedInput, taskexec.ExecutorFunc(linkedInputExecute))
	r.Register(TypeCondition, taskexec.ExecutorFunc(conditionExecute))
	r.Register(TypeMerge, taskexec.ExecutorFunc(mergeExecute))
	r.Register(TypeToolExecutor, taskexec.ExecutorFunc(toolExecutorExecute))
	r.Register(TypeComponentPreview, taskexec.ExecutorFunc(componentPreviewExecute))
	r.Register(TypeReadFile, taskexec.ExecutorFunc(readFileExecute))
	r.Register(TypeWriteFile, taskexec.ExecutorFunc(writeFileExecute))
	r.Register(TypeVectorDB, taskexec.ExecutorFunc(vectorDBExecute))
	r.Register(TypeLlamaCppInference, taskexec.ExecutorFunc(llamaCppInferenceExecute))
	r.Register(TypeOllamaInference, taskexec.ExecutorFunc(ollamaInferenceExecute))
	r.Register(TypeEmbedding, taskexec.ExecutorFunc(embeddingExecute))
	r.Register(TypeUnloadModel, taskexec.ExecutorFunc(unloadModelExecute))
	return r
}

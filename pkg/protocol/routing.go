package protocol

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Agent role constants. Each role handles one or more workflow stages.
const (
	RoleScout     = "Scout"
	RoleSage      = "Sage"
	RoleBard      = "Bard"
	RolePlanner   = "Planner"
	RoleArchitect = "Architect"
	RoleSteward   = "Steward"
	RoleForge     = "Forge"
	RoleCrucible  = "Crucible"
)

// stageAgents is the authoritative stage-to-role routing table.
var stageAgents = map[string]string{
	"workspace-detection":   RoleScout,
	"reverse-engineering":   RoleScout,
	"requirements-analysis": RoleSage,
	"functional-design":     RoleSage,
	"user-stories":          RoleBard,
	"workflow-planning":     RolePlanner,
	"units-generation":      RolePlanner,
	"application-design":    RoleArchitect,
	"infrastructure-design": RoleArchitect,
	"nfr-requirements":      RoleSteward,
	"nfr-design":            RoleSteward,
	"code-generation":       RoleForge,
	"build-and-test":        RoleCrucible,
}

// constructionStages marks the stages that belong to the construction phase;
// every other routed stage is inception.
var constructionStages = map[string]bool{
	"code-generation": true,
	"build-and-test":  true,
}

// ResolveAgent returns the agent role responsible for the given stage, or an
// UnknownStageError if the stage has no routing-table entry.
func ResolveAgent(stage string) (string, error) {
	role, ok := stageAgents[stage]
	if !ok {
		return "", &UnknownStageError{Stage: stage}
	}
	return role, nil
}

// StagePhase returns the workflow phase a routed stage belongs to, or an
// UnknownStageError for stages outside the routing table.
func StagePhase(stage string) (Phase, error) {
	if _, ok := stageAgents[stage]; !ok {
		return "", &UnknownStageError{Stage: stage}
	}
	if constructionStages[stage] {
		return PhaseConstruction, nil
	}
	return PhaseInception, nil
}

// Stages returns all routed stage names in sorted order.
func Stages() []string {
	out := make([]string, 0, len(stageAgents))
	for s := range stageAgents {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// --- Stage reference documents ---

// StageDocs maps each stage to the rule/reference document appended to every
// dispatch for that stage. Paths are relative to the project workspace root.
type StageDocs map[string]string

// DefaultStageDocs returns the built-in stage document table: rules/<stage>.md
// for every routed stage.
func DefaultStageDocs() StageDocs {
	docs := make(StageDocs, len(stageAgents))
	for stage := range stageAgents {
		docs[stage] = "rules/" + stage + ".md"
	}
	return docs
}

// LoadStageDocs reads a YAML stage-to-document override file and merges it
// over the built-in defaults. Stages absent from the file keep their default
// document. Overrides for unrouted stages are rejected.
func LoadStageDocs(path string) (StageDocs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage docs %s: %w", path, err)
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse stage docs %s: %w", path, err)
	}
	docs := DefaultStageDocs()
	for stage, doc := range overrides {
		if _, ok := stageAgents[stage]; !ok {
			return nil, &UnknownStageError{Stage: stage}
		}
		docs[stage] = doc
	}
	return docs, nil
}

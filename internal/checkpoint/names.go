// Package checkpoint names and persists training artifacts: weight
// snapshots, JSON-lines training logs and per-agent run directories.
package checkpoint

import (
	"fmt"
	"path/filepath"
)

func WeightsName(envName string) string {
	return fmt.Sprintf("dqn_%s_weights.json", envName)
}

// StepWeightsName names the periodic checkpoint written at step.
func StepWeightsName(envName string, step int) string {
	return fmt.Sprintf("dqn_%s_weights_%d.json", envName, step)
}

func LogName(envName string) string {
	return fmt.Sprintf("dqn_%s_log.json", envName)
}

// AgentDir names the output directory of one agent. An empty scenario
// leaves the suffix off.
func AgentDir(agentID int, scenario string) string {
	if scenario == "" {
		return fmt.Sprintf("agentID%d", agentID)
	}
	return fmt.Sprintf("agentID%d_scenario_%s", agentID, scenario)
}

// ScenarioDir names the orchestrator's own output directory.
func ScenarioDir(scenario string) string {
	if scenario == "" {
		return "multiagent"
	}
	return "scenario_name" + scenario
}

// RunDir joins the output root, run id and a component directory.
func RunDir(root, runID, component string) string {
	return filepath.Join(root, runID, component)
}

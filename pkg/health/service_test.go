package health

import (
	"testing"

	"github.com/google/uuid"
)

func TestAnyDegradedOrWorse(t *testing.T) {
	agentID := uuid.New()
	otherAgent := uuid.New()

	tests := []struct {
		name    string
		reports []DeploymentHealth
		want    bool
	}{
		{"no prior reports", nil, false},
		{"agent previously healthy", []DeploymentHealth{{AgentID: agentID, Status: StatusHealthy}}, false},
		{"agent previously degraded", []DeploymentHealth{{AgentID: agentID, Status: StatusDegraded}}, true},
		{"agent previously failing", []DeploymentHealth{{AgentID: agentID, Status: StatusFailing}}, true},
		{"agent previously unknown", []DeploymentHealth{{AgentID: agentID, Status: StatusUnknown}}, true},
		{"only other agent's report is bad", []DeploymentHealth{{AgentID: otherAgent, Status: StatusFailing}}, false},
		{
			"mixed reports, this agent healthy",
			[]DeploymentHealth{{AgentID: otherAgent, Status: StatusFailing}, {AgentID: agentID, Status: StatusHealthy}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := anyDegradedOrWorse(tt.reports, agentID); got != tt.want {
				t.Errorf("anyDegradedOrWorse() = %v, want %v", got, tt.want)
			}
		})
	}
}

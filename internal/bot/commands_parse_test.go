package bot

import (
	"testing"

	"github.com/stretchr/testify/require"
	appmodels "gitlab.com/yelinaung/expense-approval/internal/models"
	"pgregory.net/rapid"
)

func TestExtractCommandArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		command string
		want    string
	}{
		{name: "simple command with args", text: "/claim abc", command: "/claim", want: "abc"},
		{name: "command with no args", text: "/pending", command: "/pending", want: ""},
		{name: "bot mention and args", text: "/approve@approvals_bot abc looks fine", command: "/approve", want: "abc looks fine"},
		{name: "bot mention and no args", text: "/reject@approvals_bot", command: "/reject", want: ""},
		{name: "extra spaces", text: "/claim   abc  ", command: "/claim", want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, extractCommandArgs(tt.text, tt.command))
		})
	}
}

func TestCommandOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/approve", commandOf("/approve abc secret comment"))
	require.Equal(t, "/pending", commandOf("/pending@approvals_bot"))
	require.Empty(t, commandOf("free text"))
}

func TestParseVoteArgs(t *testing.T) {
	t.Parallel()

	id, comment := parseVoteArgs(" abc  over budget but ok ")
	require.Equal(t, "abc", id)
	require.Equal(t, "over budget but ok", comment)

	id, comment = parseVoteArgs("abc")
	require.Equal(t, "abc", id)
	require.Empty(t, comment)
}

func TestParseOverrideArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    string
		status  appmodels.ClaimStatus
		reason  string
		wantErr bool
	}{
		{name: "approve", args: "abc approve CEO signed off", status: appmodels.ClaimApproved, reason: "CEO signed off"},
		{name: "rejected spelling", args: "abc Rejected fraud", status: appmodels.ClaimRejected, reason: "fraud"},
		{name: "no reason", args: "abc approve", wantErr: true},
		{name: "unknown outcome", args: "abc pending because", wantErr: true},
		{name: "empty", args: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, status, reason, err := parseOverrideArgs(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "abc", id)
			require.Equal(t, tt.status, status)
			require.Equal(t, tt.reason, reason)
		})
	}
}

func TestParseVoteCallback(t *testing.T) {
	t.Parallel()

	t.Run("rejects malformed data", func(t *testing.T) {
		t.Parallel()
		for _, data := range []string{"vote:", "vote:approve:abc", "vote:approve:abc:x", "vote:approve:abc:-1", "vote:skip:abc:0"} {
			_, _, _, err := parseVoteCallback(data)
			require.Error(t, err, data)
		}
	})

	t.Run("button data fits telegram limit and parses back", func(t *testing.T) {
		t.Parallel()
		rapid.Check(t, func(t *rapid.T) {
			decision := rapid.SampledFrom([]appmodels.Decision{appmodels.DecisionApprove, appmodels.DecisionReject}).Draw(t, "decision")
			claimID := rapid.StringMatching(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`).Draw(t, "claim")
			step := rapid.IntRange(0, 99).Draw(t, "step")

			data := voteCallbackData(decision, claimID, step)
			if len(data) > 64 {
				t.Fatalf("callback data %q exceeds 64 bytes", data)
			}
			gotDecision, gotID, gotStep, err := parseVoteCallback(data)
			if err != nil {
				t.Fatalf("parse %q: %v", data, err)
			}
			if gotDecision != decision || gotID != claimID || gotStep != step {
				t.Fatalf("parse %q = %s %s %d", data, gotDecision, gotID, gotStep)
			}
		})
	})
}

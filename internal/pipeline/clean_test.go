package pipeline

import "testing"

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text untouched",
			in:   "Would next Tuesday work for a quick demo?",
			want: "Would next Tuesday work for a quick demo?",
		},
		{
			name: "suggest prefix with quotes",
			in:   `Suggest the sales representative to respond: "Let me check if we have inventory in your size."`,
			want: "Let me check if we have inventory in your size.",
		},
		{
			name: "suggest prefix keeps inner quotes",
			in:   `Suggest the sales representative to respond: "She said "great" earlier." Good luck`,
			want: `She said "great" earlier.`,
		},
		{
			name: "suggest prefix single quote char",
			in:   `Suggest the sales representative to respond: "Sure thing`,
			want: "Sure thing",
		},
		{
			name: "suggest prefix without quotes",
			in:   "Suggest the sales representative to respond:   Happy to help with that.",
			want: "Happy to help with that.",
		},
		{
			name: "bare respond marker",
			in:   "You could respond: Absolutely, I can send the brochure.",
			want: "Absolutely, I can send the brochure.",
		},
		{
			name: "colon without marker untouched",
			in:   "Note: pricing starts at $20.",
			want: "Note: pricing starts at $20.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanResponse(tt.in); got != tt.want {
				t.Errorf("CleanResponse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

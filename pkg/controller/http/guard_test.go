package http_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	server "github.com/secmon-lab/tollgate/pkg/controller/http"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
)

func TestDecide(t *testing.T) {
	testCases := []struct {
		name  string
		state auth.State
		want  string
	}{
		{
			name:  "not reported yet",
			state: auth.State{},
			want:  "resolving",
		},
		{
			name:  "not reported yet with stale session",
			state: auth.State{Session: &auth.Session{UID: "uid-1"}},
			want:  "resolving",
		},
		{
			name:  "signed in",
			state: auth.State{Session: &auth.Session{UID: "uid-1"}, Resolved: true},
			want:  "authorized",
		},
		{
			name:  "signed out",
			state: auth.SignedOutState(),
			want:  "denied",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Equal(t, server.Decide(tc.state), tc.want)
		})
	}
}

func TestSafeNext(t *testing.T) {
	testCases := []struct {
		next string
		want string
	}{
		{next: "/profile", want: "/profile"},
		{next: "/profile?tab=1", want: "/profile?tab=1"},
		{next: "", want: "/"},
		{next: "profile", want: "/"},
		{next: "//evil.example.com/x", want: "/"},
		{next: "/\\evil.example.com", want: "/"},
		{next: "https://evil.example.com/", want: "/"},
	}

	for _, tc := range testCases {
		t.Run(tc.next, func(t *testing.T) {
			gt.Equal(t, server.SafeNext(tc.next, "/"), tc.want)
		})
	}
}

func TestLoginURL(t *testing.T) {
	gt.Equal(t, server.LoginURL(""), "/login")
	gt.Equal(t, server.LoginURL("/"), "/login")
	gt.Equal(t, server.LoginURL("/profile"), "/login?next=%2Fprofile")
}

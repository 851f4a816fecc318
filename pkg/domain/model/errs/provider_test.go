package errs_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
)

func TestProviderMessage(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "identity toolkit style",
			err: goerr.New("failed to sign up",
				goerr.TV(errs.ProviderMessageKey, "WEAK_PASSWORD : Password should be at least 6 characters")),
			want: "Password should be at least 6 characters",
		},
		{
			name: "sdk style",
			err:  errors.New("Firebase: Error (auth/email-already-in-use)."),
			want: "Error (auth/email-already-in-use).",
		},
		{
			name: "no colon",
			err:  goerr.New("failed", goerr.TV(errs.ProviderMessageKey, "EMAIL_NOT_FOUND")),
			want: "EMAIL_NOT_FOUND",
		},
		{
			name: "trailing colon",
			err:  errors.New("INVALID_PASSWORD:"),
			want: "INVALID_PASSWORD",
		},
		{
			name: "nil",
			err:  nil,
			want: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Equal(t, errs.ProviderMessage(tc.err), tc.want)
		})
	}
}

func TestIsRejected(t *testing.T) {
	rejected := goerr.New("identity provider rejected request",
		goerr.TV(errs.ProviderMessageKey, "INVALID_REFRESH_TOKEN"),
		goerr.T(errs.TagProvider),
		goerr.T(errs.TagRejected))
	gt.True(t, errs.IsRejected(rejected))
	gt.True(t, errs.IsRejected(goerr.Wrap(rejected, "failed to refresh")))

	unavailable := goerr.New("identity provider rejected request",
		goerr.TV(errs.ProviderMessageKey, "UNAVAILABLE"),
		goerr.T(errs.TagProvider))
	gt.False(t, errs.IsRejected(unavailable))

	unreachable := goerr.New("failed to make token request", goerr.T(errs.TagProvider))
	gt.False(t, errs.IsRejected(unreachable))
}

func TestIsCredentialRejection(t *testing.T) {
	testCases := []struct {
		msg  string
		want bool
	}{
		{msg: "INVALID_REFRESH_TOKEN : Invalid refresh token provided.", want: true},
		{msg: "TOKEN_EXPIRED", want: true},
		{msg: "USER_DISABLED: The user account has been disabled by an administrator.", want: true},
		{msg: "USER_NOT_FOUND", want: true},
		{msg: "UNAVAILABLE", want: false},
		{msg: "QUOTA_EXCEEDED : Exceeded quota for refreshing tokens.", want: false},
		{msg: "INTERNAL", want: false},
		{msg: "", want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.msg, func(t *testing.T) {
			gt.Equal(t, errs.IsCredentialRejection(tc.msg), tc.want)
		})
	}
}

package usecase

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/domain/model/form"
	"github.com/secmon-lab/tollgate/pkg/utils/errutil"
	"github.com/secmon-lab/tollgate/pkg/utils/logging"
)

// SignUpStage names one step of the sign-up pipeline.
type SignUpStage string

const (
	StageCreateAccount         SignUpStage = "create_account"
	StageSendVerificationEmail SignUpStage = "send_verification_email"
	StageUpdateDisplayName     SignUpStage = "update_display_name"
)

// StageResult is the outcome of a pipeline stage. Err is nil on success.
type StageResult struct {
	Stage SignUpStage
	Err   error
}

// SignUpResult represents the result of the sign-up pipeline. Token is set
// whenever the account was created, even if a follow-up stage failed.
type SignUpResult struct {
	Token  *auth.Token
	Stages []StageResult
}

// Failed returns the follow-up stages that did not succeed.
func (x *SignUpResult) Failed() []StageResult {
	var failed []StageResult
	for _, s := range x.Stages {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// SignUp runs the registration pipeline.
//
// Pipeline stages:
// 1. create_account - creates the account and signs the visitor in
// 2. send_verification_email - best-effort
// 3. update_display_name - best-effort, patches the local session on success
//
// Only a failure of the first stage is returned as an error. Follow-up
// failures are logged and reported in the result; they never roll back the
// account.
func (uc *SessionUseCase) SignUp(ctx context.Context, input form.SignUp) (*SignUpResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	token, err := uc.CreateAccount(ctx, input.Email, input.Password)
	if err != nil {
		return nil, goerr.Wrap(err, "sign-up failed", goerr.TV(errutil.StageKey, string(StageCreateAccount)))
	}

	result := &SignUpResult{
		Token:  token,
		Stages: []StageResult{{Stage: StageCreateAccount}},
	}

	stages := []struct {
		stage SignUpStage
		run   func(ctx context.Context) error
	}{
		{
			stage: StageSendVerificationEmail,
			run: func(ctx context.Context) error {
				return uc.SendVerificationEmail(ctx, token.ID)
			},
		},
		{
			stage: StageUpdateDisplayName,
			run: func(ctx context.Context) error {
				name := strings.TrimSpace(input.Name)
				if err := uc.UpdateProfile(ctx, token.ID, name, ""); err != nil {
					return err
				}
				return uc.PatchProfile(ctx, token.ID, name, "")
			},
		},
	}

	for _, s := range stages {
		err := s.run(ctx)
		if err != nil {
			logging.From(ctx).Warn("sign-up follow-up failed",
				"stage", s.stage,
				"token_id", token.ID,
				logging.ErrAttr(err))
		}
		result.Stages = append(result.Stages, StageResult{Stage: s.stage, Err: err})
	}

	return result, nil
}

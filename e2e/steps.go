//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// RegisterSteps registers all step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Step(`^the gateway is running$`, tc.gatewayIsRunning)

	// Holder steps
	ctx.Step(`^a holder born on (\d{4})-(\d{2})-(\d{2}) with secret "([^"]*)"$`, tc.holderBornOn)
	ctx.Step(`^the holder requests a commitment$`, tc.requestCommitment)
	ctx.Step(`^the holder requests a proof$`, tc.requestProof)
	ctx.Step(`^the holder requests a proof with commitment "([^"]*)"$`, tc.requestProofWithCommitment)
	ctx.Step(`^the holder has an issued credential$`, tc.hasIssuedCredential)

	// Credential steps
	ctx.Step(`^the credential is verified$`, tc.verifyCredential)
	ctx.Step(`^credential "([^"]*)" is verified$`, tc.verifyCredentialID)
	ctx.Step(`^eligibility is checked for (\d+(?:\.\d+)?) in "([^"]*)"$`, tc.checkEligibility)

	// Request steps
	ctx.Step(`^I POST to "([^"]*)" with empty body$`, tc.postWithEmptyBody)
	ctx.Step(`^I GET "([^"]*)"$`, tc.get)

	// Assertion steps
	ctx.Step(`^the response status should be (\d+)$`, tc.responseStatusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, tc.responseFieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should be (true|false)$`, tc.responseFieldShouldBe)
	ctx.Step(`^the response should include a receipt$`, tc.responseShouldIncludeReceipt)
	ctx.Step(`^the response should not include a receipt$`, tc.responseShouldNotIncludeReceipt)
}

func (tc *TestContext) gatewayIsRunning(ctx context.Context) error {
	if err := tc.GET("/health/live"); err != nil {
		return err
	}
	if tc.Status() != 200 {
		return fmt.Errorf("gateway not live at %s: status %d", tc.BaseURL, tc.Status())
	}
	return nil
}

func (tc *TestContext) holderBornOn(ctx context.Context, year, month, day int, secret string) error {
	tc.Holder = map[string]any{
		"birthYear":      year,
		"birthMonth":     month,
		"birthDay":       day,
		"identitySecret": secret,
	}
	return nil
}

func (tc *TestContext) requestCommitment(ctx context.Context) error {
	if err := tc.POST("/commitment", tc.Holder); err != nil {
		return err
	}
	if tc.Status() != 200 {
		return nil
	}
	c, err := tc.stringField("commitment")
	if err != nil {
		return err
	}
	tc.Commitment = c
	return nil
}

func (tc *TestContext) requestProof(ctx context.Context) error {
	return tc.requestProofWithCommitment(ctx, tc.Commitment)
}

func (tc *TestContext) requestProofWithCommitment(ctx context.Context, commitment string) error {
	body := map[string]any{"commitment": commitment}
	for k, v := range tc.Holder {
		body[k] = v
	}
	if err := tc.POST("/proof", body); err != nil {
		return err
	}
	if tc.Status() != 200 {
		return nil
	}
	id, err := tc.stringField("credentialId")
	if err != nil {
		return err
	}
	tc.CredentialID = id
	return nil
}

func (tc *TestContext) hasIssuedCredential(ctx context.Context) error {
	if err := tc.requestCommitment(ctx); err != nil {
		return err
	}
	if err := tc.requestProof(ctx); err != nil {
		return err
	}
	if tc.CredentialID == "" {
		return fmt.Errorf("no credential issued: status %d", tc.Status())
	}
	return nil
}

func (tc *TestContext) verifyCredential(ctx context.Context) error {
	return tc.verifyCredentialID(ctx, tc.CredentialID)
}

func (tc *TestContext) verifyCredentialID(ctx context.Context, id string) error {
	return tc.POST("/proof/verify", map[string]any{"credentialId": id})
}

func (tc *TestContext) checkEligibility(ctx context.Context, amount, jurisdiction string) error {
	a, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return err
	}
	return tc.POST("/eligibility", map[string]any{
		"credentialId": tc.CredentialID,
		"amount":       a,
		"jurisdiction": jurisdiction,
	})
}

func (tc *TestContext) postWithEmptyBody(ctx context.Context, path string) error {
	return tc.POST(path, map[string]any{})
}

func (tc *TestContext) get(ctx context.Context, path string) error {
	return tc.GET(path)
}

func (tc *TestContext) responseStatusShouldBe(ctx context.Context, expected int) error {
	if actual := tc.Status(); actual != expected {
		return fmt.Errorf("expected status %d but got %d", expected, actual)
	}
	return nil
}

func (tc *TestContext) responseFieldShouldEqual(ctx context.Context, field, expected string) error {
	value, err := tc.ResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(value) != expected {
		return fmt.Errorf("expected %s to equal %q but got %v", field, expected, value)
	}
	return nil
}

func (tc *TestContext) responseFieldShouldBe(ctx context.Context, field, expected string) error {
	value, err := tc.ResponseField(field)
	if err != nil {
		return err
	}
	b, ok := value.(bool)
	if !ok || strconv.FormatBool(b) != expected {
		return fmt.Errorf("expected %s to be %s but got %v", field, expected, value)
	}
	return nil
}

func (tc *TestContext) responseShouldIncludeReceipt(ctx context.Context) error {
	r, err := tc.stringField("receipt")
	if err != nil {
		return err
	}
	if r == "" {
		return fmt.Errorf("receipt is empty")
	}
	return nil
}

func (tc *TestContext) responseShouldNotIncludeReceipt(ctx context.Context) error {
	if _, err := tc.ResponseField("receipt"); err == nil {
		return fmt.Errorf("unexpected receipt in response")
	}
	return nil
}

func (tc *TestContext) stringField(field string) (string, error) {
	value, err := tc.ResponseField(field)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("field %s is not a string: %v", field, value)
	}
	return s, nil
}

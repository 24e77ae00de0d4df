package capabilities

import (
	"fmt"
	"os"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// newSMSHandle exposes outbound SMS sending to tasks declaring "sms".
// Without Twilio credentials in the environment the handle is a placeholder
// that fails lazily on use.
func newSMSHandle() Handle {
	accountSID := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	fromNumber := os.Getenv("TWILIO_FROM_NUMBER")
	if accountSID == "" || authToken == "" || fromNumber == "" {
		return unavailable(CapabilitySMS, "TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN/TWILIO_FROM_NUMBER not configured", "send")
	}

	cli := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return Handle{
		"send": func(to, body string) (map[string]interface{}, error) {
			params := &twilioapi.CreateMessageParams{}
			params.SetTo(to)
			params.SetFrom(fromNumber)
			params.SetBody(body)
			msg, err := cli.Api.CreateMessage(params)
			if err != nil {
				return nil, fmt.Errorf("sms: send to %s failed: %w", to, err)
			}
			out := map[string]interface{}{"to": to}
			if msg.Sid != nil {
				out["sid"] = *msg.Sid
			}
			if msg.Status != nil {
				out["status"] = *msg.Status
			}
			return out, nil
		},
	}
}

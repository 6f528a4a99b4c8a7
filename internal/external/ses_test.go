package external

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"emailer/internal/types"
)

type mockSESAPI struct {
	mock.Mock
}

func (m *mockSESAPI) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sesv2.SendEmailOutput)
	return out, args.Error(1)
}

func TestSESSend_Success(t *testing.T) {
	api := &mockSESAPI{}
	var captured *sesv2.SendEmailInput
	api.On("SendEmail", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*sesv2.SendEmailInput) }).
		Return(&sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil)

	client := NewSESClientWithAPI(api, SESClientConfig{ConfigSetName: "emailer-tracking"})
	id, err := client.Send(context.Background(), testMessage)

	require.NoError(t, err)
	assert.Equal(t, "ses-1", id)
	assert.Equal(t, `"Kinto" <kinto@example.com>`, aws.ToString(captured.FromEmailAddress))
	assert.Equal(t, []string{"<alice@example.com>", `"Bob" <bob@example.com>`}, captured.Destination.ToAddresses)
	assert.Equal(t, "Hello", aws.ToString(captured.Content.Simple.Subject.Data))
	assert.Equal(t, "Body", aws.ToString(captured.Content.Simple.Body.Text.Data))
	assert.Nil(t, captured.Content.Simple.Body.Html)
	assert.Equal(t, "emailer-tracking", aws.ToString(captured.ConfigurationSetName))
	require.Len(t, captured.EmailTags, 1)
	assert.Equal(t, "m1", aws.ToString(captured.EmailTags[0].Value))
	api.AssertExpectations(t)
}

func TestMapSESError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want types.ErrorCode
	}{
		{"rejected", &sestypes.MessageRejected{Message: aws.String("bad")}, types.ErrCodeEmailBlocked},
		{"throttled", &sestypes.TooManyRequestsException{Message: aws.String("slow")}, types.ErrCodeUpstreamRateLimited},
		{"paused", &sestypes.SendingPausedException{Message: aws.String("paused")}, types.ErrCodeUpstreamUnavailable},
		{"other", errors.New("network"), types.ErrCodeUpstreamEmailProvider},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &mockSESAPI{}
			api.On("SendEmail", mock.Anything, mock.Anything).Return(nil, tc.err)

			_, err := NewSESClientWithAPI(api, SESClientConfig{}).Send(context.Background(), testMessage)

			assert.Equal(t, tc.want, types.ErrorCodeOf(err))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

package kafka

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

func TestSendAlertPublishesJSON(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := &Producer{producer: mock, topic: "surveillance-alerts"}

	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got models.Alert
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.WeaponType != "gun" || got.EvidenceID != "EVD_1" {
			return errors.New("unexpected alert payload")
		}
		return nil
	})

	require.NoError(t, p.SendAlert(models.Alert{ID: "a1", WeaponType: "gun", Confidence: 0.9, EvidenceID: "EVD_1"}))
	require.NoError(t, p.Close())
}

func TestSendAlertWrapsBrokerError(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := &Producer{producer: mock, topic: "surveillance-alerts"}

	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := p.SendAlert(models.Alert{WeaponType: "knife"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.Contains(t, err.Error(), "surveillance-alerts")
	require.NoError(t, p.Close())
}

func TestAckWithoutSessionIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { Message{Value: []byte(`{}`)}.Ack() })
}

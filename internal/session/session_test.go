package session

import (
	"errors"
	"testing"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/message"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
)

func validSetup() *message.ClientSetup {
	return &message.ClientSetup{
		SupportedVersions: []uint64{message.ProtocolVersion},
		Parameters:        message.Parameters{}.AddVarint(message.ParamRole, uint64(message.RolePubSub)),
	}
}

func TestHandleSetup(t *testing.T) {
	sess := NewSession(1, UnderlayQUIC)
	resp, err := sess.HandleSetup(validSetup())
	if err != nil {
		t.Fatalf("Fail to handle SETUP, details: %v", err)
	}
	if resp.SelectedVersion != message.ProtocolVersion {
		t.Errorf("期望版本=%x 实际=%x", message.ProtocolVersion, resp.SelectedVersion)
	}
	if sess.Phase != PhaseSetUp {
		t.Errorf("期望阶段=%s 实际=%s", PhaseSetUp, sess.Phase)
	}
}

func TestHandleSetupDuplicate(t *testing.T) {
	sess := NewSession(1, UnderlayQUIC)
	if _, err := sess.HandleSetup(validSetup()); err != nil {
		t.Fatalf("Fail to handle first SETUP, details: %v", err)
	}
	_, err := sess.HandleSetup(validSetup())
	if !errors.Is(err, moq.ErrProtocolViolation) {
		t.Errorf("Except ErrProtocolViolation for duplicate SETUP, but got %v", err)
	}
}

func TestHandleSetupUnsupportedVersion(t *testing.T) {
	sess := NewSession(1, UnderlayQUIC)
	setup := validSetup()
	setup.SupportedVersions = []uint64{0xff000001}
	_, err := sess.HandleSetup(setup)
	if !errors.Is(err, moq.ErrProtocolViolation) {
		t.Errorf("Except ErrProtocolViolation, but got %v", err)
	}
}

func TestHandleSetupMissingRole(t *testing.T) {
	sess := NewSession(1, UnderlayQUIC)
	setup := validSetup()
	setup.Parameters = message.Parameters{}
	_, err := sess.HandleSetup(setup)
	if !errors.Is(err, moq.ErrProtocolViolation) {
		t.Errorf("Except ErrProtocolViolation, but got %v", err)
	}
}

func TestHandleSetupPathOnWebTransport(t *testing.T) {
	sess := NewSession(1, UnderlayWebTransport)
	setup := validSetup()
	setup.Parameters = setup.Parameters.AddString(message.ParamPath, "/moq")
	_, err := sess.HandleSetup(setup)
	if !errors.Is(err, moq.ErrProtocolViolation) {
		t.Errorf("Except ErrProtocolViolation, but got %v", err)
	}

	// 同样的PATH参数在原生QUIC下是允许的
	sess = NewSession(2, UnderlayQUIC)
	if _, err := sess.HandleSetup(setup); err != nil {
		t.Errorf("Fail to handle SETUP with PATH over QUIC, details: %v", err)
	}
}

func TestCheckMessageLegal(t *testing.T) {
	sess := NewSession(1, UnderlayQUIC)

	if err := sess.CheckMessageLegal(message.TypeSubscribe); !errors.Is(err, moq.ErrProtocolViolation) {
		t.Errorf("Except ErrProtocolViolation before SETUP, but got %v", err)
	}
	if err := sess.CheckMessageLegal(message.TypeClientSetup); err != nil {
		t.Errorf("SETUP must be legal in CONNECTED phase, details: %v", err)
	}

	if _, err := sess.HandleSetup(validSetup()); err != nil {
		t.Fatalf("Fail to handle SETUP, details: %v", err)
	}

	if err := sess.CheckMessageLegal(message.TypeSubscribe); err != nil {
		t.Errorf("SUBSCRIBE must be legal after SETUP, details: %v", err)
	}
	if err := sess.CheckMessageLegal(message.TypeClientSetup); !errors.Is(err, moq.ErrProtocolViolation) {
		t.Errorf("Except ErrProtocolViolation for SETUP after SETUP, but got %v", err)
	}
}

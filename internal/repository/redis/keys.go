package repository

import (
	"fmt"

	"github.com/vogiaan1904/consultroom/internal/models"
)

const keyPrefix = "consult"

func consultantKey(id string) string {
	return fmt.Sprintf("%s:consultant:%s", keyPrefix, id)
}

func consultantSetKey() string {
	return keyPrefix + ":consultants"
}

func specialtyKey(specialty string) string {
	return fmt.Sprintf("%s:specialty:%s", keyPrefix, specialty)
}

func balanceKey(clientID string) string {
	return fmt.Sprintf("%s:balance:%s", keyPrefix, clientID)
}

func ledgerKey(clientID string) string {
	return fmt.Sprintf("%s:ledger:%s", keyPrefix, clientID)
}

func purchaseKey(purchaseID string) string {
	return fmt.Sprintf("%s:purchase:%s", keyPrefix, purchaseID)
}

func queueKey(t models.QueueTarget) string {
	return fmt.Sprintf("%s:queue:%s", keyPrefix, t.Key())
}

func queueClientsKey(t models.QueueTarget) string {
	return fmt.Sprintf("%s:queue:%s:clients", keyPrefix, t.Key())
}

func queueEntryKey(requestID string) string {
	return fmt.Sprintf("%s:queue_entry:%s", keyPrefix, requestID)
}

func queueTargetsKey() string {
	return keyPrefix + ":queue_targets"
}

func queueSeqKey() string {
	return keyPrefix + ":queue_seq"
}

func resolutionKey(requestID string) string {
	return fmt.Sprintf("%s:resolution:%s", keyPrefix, requestID)
}

func sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, id)
}

func activePairKey(consultantID, clientID string) string {
	return fmt.Sprintf("%s:active:%s:%s", keyPrefix, consultantID, clientID)
}

func consultantSessionsKey(consultantID string) string {
	return fmt.Sprintf("%s:consultant_sessions:%s", keyPrefix, consultantID)
}

func activeSessionsKey() string {
	return keyPrefix + ":sessions_active"
}

func clientSessionsKey(clientID string) string {
	return fmt.Sprintf("%s:client_sessions:%s", keyPrefix, clientID)
}

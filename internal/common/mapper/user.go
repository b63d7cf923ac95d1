package mapper

import (
	"github.com/AlibekovAA/user-directory/backend/internal/common/dto"
	"github.com/AlibekovAA/user-directory/backend/internal/outbox"
	userdomain "github.com/AlibekovAA/user-directory/backend/internal/user/domain"
)

func UserToDTO(user userdomain.User) dto.User {
	return dto.User{
		ID:           string(user.ID),
		Username:     user.Username,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Biography:    user.Biography,
		CreationDate: user.CreatedAt,
		Active:       user.Active,
	}
}

// UserFromDTO keeps whatever identity the caller sent; the service decides
// which of it survives.
func UserFromDTO(d dto.User) userdomain.User {
	return userdomain.User{
		UserIdentity: userdomain.UserIdentity{
			ID:        userdomain.ID(d.ID),
			Username:  d.Username,
			CreatedAt: d.CreationDate,
		},
		UserProfile: ProfileFromDTO(d),
	}
}

func ProfileFromDTO(d dto.User) userdomain.UserProfile {
	return userdomain.UserProfile{
		Email:     d.Email,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Biography: d.Biography,
		Active:    d.Active,
	}
}

func OutboxEntryToDTO(entry outbox.Entry) dto.OutboxEntry {
	return dto.OutboxEntry{
		ID:            entry.ID,
		CorrelationID: entry.CorrelationID,
		Payload:       string(entry.Payload),
		Reason:        entry.Reason,
		FailedAt:      entry.FailedAt,
		Processed:     entry.Processed,
	}
}

func OutboxEntriesToDTO(entries []outbox.Entry) []dto.OutboxEntry {
	result := make([]dto.OutboxEntry, len(entries))
	for i, e := range entries {
		result[i] = OutboxEntryToDTO(e)
	}
	return result
}

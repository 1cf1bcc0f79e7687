// Package memory provides in-process implementations of the repository
// interfaces. They back the test suites and STORAGE_DRIVER=memory runs.
package memory

import (
	"github.com/baiweichihu/26b-website-sub001/internal/repository"
)

// NewRepositories wires every memory store together. Access request review
// queries join profile data from the same profile store.
func NewRepositories() *repository.Repositories {
	profiles := NewProfileRepository()
	return &repository.Repositories{
		ProfileRepo:       profiles,
		AccessRequestRepo: NewAccessRequestRepository(profiles),
		NotificationRepo:  NewNotificationRepository(),
		SessionRepo:       NewSessionRepository(),
	}
}

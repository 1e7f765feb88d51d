package emailsvc

import "github.com/trezcool/academia/core"

// dummyService drops all messages. Useful for one-off CLI commands.
type dummyService struct{}

var _ core.EmailService = (*dummyService)(nil)

func NewDummyService() core.EmailService { return &dummyService{} }

func (svc dummyService) SendMessages(...*core.EmailMessage) {}

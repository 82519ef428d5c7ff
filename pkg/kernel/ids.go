package kernel

type WorkflowID string

func NewWorkflowID(id string) WorkflowID { return WorkflowID(id) }
func (r WorkflowID) String() string      { return string(r) }
func (r WorkflowID) IsEmpty() bool       { return string(r) == "" }

type SessionID string

func NewSessionID(id string) SessionID { return SessionID(id) }
func (r SessionID) String() string     { return string(r) }
func (r SessionID) IsEmpty() bool      { return string(r) == "" }

type MessageID string

func NewMessageID(id string) MessageID { return MessageID(id) }
func (r MessageID) String() string     { return string(r) }
func (r MessageID) IsEmpty() bool      { return string(r) == "" }

type ProviderID string

func NewProviderID(id string) ProviderID { return ProviderID(id) }
func (r ProviderID) String() string      { return string(r) }
func (r ProviderID) IsEmpty() bool       { return string(r) == "" }

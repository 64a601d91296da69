package attendu

// UserSummary is the account the session belongs to.
type UserSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Class is a class visible to the logged-in account.
type Class struct {
	ID        int64  `json:"id"`
	Name      string `json:"class_name"`
	Teacher   string `json:"teacher_name,omitempty"`
	Students  int    `json:"student_count,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// MatchedStudent is the student the recognition service matched a frame to.
type MatchedStudent struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// MarkResult is the response of the attendance mark endpoint.
// A nil MatchedStudent means there was no confident match.
type MarkResult struct {
	MatchedStudent *MatchedStudent `json:"matched_student"`
	AlreadyMarked  bool            `json:"already_marked"`
	Distance       float64         `json:"distance"`
}

// loginResponse accepts both {"user": {...}} and a bare user object.
type loginResponse struct {
	Message string       `json:"message"`
	User    *UserSummary `json:"user"`
	ID      int64        `json:"id"`
	Name    string       `json:"name"`
	Email   string       `json:"email"`
	Role    string       `json:"role"`
}

func (r *loginResponse) user() *UserSummary {
	if r.User != nil {
		return r.User
	}
	if r.ID == 0 && r.Email == "" {
		return nil
	}
	return &UserSummary{ID: r.ID, Name: r.Name, Email: r.Email, Role: r.Role}
}

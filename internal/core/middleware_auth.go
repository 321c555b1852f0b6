package core

import (
	"net/http"

	"scholarwatch/internal/auth"
	"scholarwatch/internal/types"
)

// SessionAuth requires a valid bearer session and puts the student on the
// context as a types.Actor. A server without a SessionVerifier rejects
// every request.
func (s *Server) SessionAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Sessions == nil {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "sessions are not accepted here", nil))
			return
		}

		token := auth.BearerToken(r.Header.Get("Authorization"))
		actor, err := s.Sessions.Verify(token)
		if err != nil {
			types.LoggerFromContext(r.Context(), s.Logger).WarnContext(r.Context(), "session rejected",
				"code", string(types.CodeOf(err)),
			)
			Error(w, r, err)
			return
		}

		ctx := types.WithActor(r.Context(), actor)
		ctx = types.WithLogger(ctx, types.LoggerFromContext(ctx, s.Logger).With("student_id", actor.StudentID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Package streamsession opens authenticated sessions against streaming
// providers and resolves DRM-protected playback for them.
//
// A session is opened per provider and keeps its token in a store.Store:
//
//	s, err := streamsession.New("stan").
//		WithStore(st).
//		WithPrompt(prompt.NewTerminal(os.Stdin, os.Stdout)).
//		Open(ctx)
//	if err != nil {
//		return err
//	}
//	if err := s.Login(ctx, user, password); err != nil {
//		return err
//	}
//	pb, err := s.ResolvePlayback(ctx, stan.TypeProgram, "1234")
//
// Catalog calls are reached through Foxtel or Stan and refresh the token
// when needed. Errors are *errs.Error values; test them with errors.Is
// against the errs sentinels.
package streamsession

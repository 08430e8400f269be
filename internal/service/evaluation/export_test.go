package evaluation

// SetPageSize overrides the EvaluateAll page size so tests can exercise
// pagination without thousands of rows.
func (s *Service) SetPageSize(n int) { s.pageSize = n }

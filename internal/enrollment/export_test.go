package enrollment

// SetTeamIDSource replaces the team id generator.
func (s *Service) SetTeamIDSource(f func() string) { s.teamID = f }

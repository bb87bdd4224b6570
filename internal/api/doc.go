// Package api serves the dealer domain onboarding HTTP API.
//
//	@title						Dealer Sites Onboarding API
//	@version					1.0
//	@description				Custom domain onboarding, registration and routing for dealer sites
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package api

// Package baidu adapts the Baidu AI platform dish recognition API.
//
// Access tokens are OAuth2 client-credentials tokens issued from the
// application's API key and secret key. They live about 30 days and are held
// in a credential.Cache with a 300 second refresh margin.
package baidu

// Package imgsync copies user photos from Microsoft Entra ID into SharePoint
// Online user profiles.
//
// For one user, [Syncer.Sync] checks the SharePoint profile for a picture
// URL and, when none is set, fetches the directory photo from Microsoft
// Graph, uploads it to the my-site "User Photos" library and points the
// profile's PictureURL property at the uploaded file.
//
// Each of [Graph] and [Site] talks to one host through its own client, so
// every host has its own bearer token and throttle budget.
package imgsync
